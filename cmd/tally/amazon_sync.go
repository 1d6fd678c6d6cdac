package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/calvinlock/tally/internal/amazon"
	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/config"
	"github.com/calvinlock/tally/internal/engine"
	"github.com/calvinlock/tally/internal/service"
)

func amazonSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amazon-sync [budget]",
		Short: "Scrape Amazon orders and match them against budget transactions",
		Long: `Scrapes your Amazon order history through a browser session, stores the
orders locally, and links each one to the budget transaction it paid for.
Matched transactions show their order items during categorization.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAmazonSync,
	}

	cmd.Flags().String("after", "", "only consider orders on or after this date (YYYY-MM-DD)")
	cmd.Flags().Int("max", 50, "maximum number of orders to scrape")
	cmd.Flags().Bool("dry-run", false, "match but do not save links")
	cmd.Flags().Bool("test", false, "only check whether the browser session is still logged in")
	cmd.Flags().String("ofx", "", "match against an OFX/QFX export instead of the budget API")
	cmd.Flags().String("profile-dir", "", "browser profile directory (default: data dir)")
	return cmd
}

func runAmazonSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	profileDir, _ := cmd.Flags().GetString("profile-dir")
	if profileDir == "" {
		dataDir, err := config.DataDir()
		if err != nil {
			return err
		}
		profileDir = filepath.Join(dataDir, "amazon-profile")
	}
	scraper := amazon.NewScraper(config.ExpandPath(profileDir))

	if test, _ := cmd.Flags().GetBool("test"); test {
		loggedIn, err := scraper.TestConnection(ctx)
		if err != nil {
			return err
		}
		if loggedIn {
			fmt.Println(cli.FormatSuccess("Amazon session is valid"))
		} else {
			fmt.Println(cli.FormatWarning("Amazon login required"))
		}
		return nil
	}

	afterFlag, _ := cmd.Flags().GetString("after")
	after, err := parseAfterFlag(afterFlag)
	if err != nil {
		return err
	}
	maxOrders, _ := cmd.Flags().GetInt("max")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ofxPath, _ := cmd.Flags().GetString("ofx")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reconciler, err := engine.NewReconciler(store)
	if err != nil {
		return err
	}

	client, err := ynabClient()
	if err != nil && ofxPath == "" {
		return err
	}
	budgetID := ""
	if ofxPath == "" {
		budgetArg := ""
		if len(args) > 0 {
			budgetArg = args[0]
		}
		budgetID, err = resolveBudgetID(ctx, client, budgetArg)
		if err != nil {
			return err
		}
	}

	fetchOpts := service.FetchOptions{Max: maxOrders}
	if after != nil {
		fetchOpts.After = *after
	}

	fmt.Println(cli.FormatTitle("Amazon order sync"))
	orders, err := scraper.FetchOrders(ctx, fetchOpts)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println(cli.FormatWarning("No orders found"))
		return nil
	}

	txns, err := loadTransactions(ctx, client, budgetID, ofxPath, after)
	if err != nil {
		return err
	}

	result, err := reconciler.SyncOrders(ctx, orders, txns, dryRun)
	if err != nil {
		return err
	}

	displaySyncResult(result, dryRun)
	return nil
}
