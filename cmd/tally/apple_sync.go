package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/engine"
	"github.com/calvinlock/tally/internal/gmail"
	"github.com/calvinlock/tally/internal/service"
)

func appleSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apple-sync [budget]",
		Short: "Pull Apple receipt emails and match them against budget transactions",
		Long: `Reads Apple receipt emails from your Gmail account, parses the item and
amount out of each one, and links receipts to the transactions that paid for
them. The first run opens a browser window for the OAuth consent flow.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAppleSync,
	}

	cmd.Flags().String("after", "", "only consider receipts on or after this date (YYYY-MM-DD)")
	cmd.Flags().Int("max", 100, "maximum number of emails to scan")
	cmd.Flags().Bool("dry-run", false, "match but do not save links")
	cmd.Flags().String("ofx", "", "match against an OFX/QFX export instead of the budget API")
	return cmd
}

func runAppleSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	afterFlag, _ := cmd.Flags().GetString("after")
	after, err := parseAfterFlag(afterFlag)
	if err != nil {
		return err
	}
	maxResults, _ := cmd.Flags().GetInt("max")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ofxPath, _ := cmd.Flags().GetString("ofx")

	oauthCfg, err := gmailOAuthConfig()
	if err != nil {
		return err
	}

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

	mailClient, err := gmail.NewClient(ctx, oauthCfg)
	if err != nil {
		return err
	}

	fetchOpts := service.FetchOptions{Max: maxResults}
	if after != nil {
		fetchOpts.After = *after
	}

	fmt.Println(cli.FormatTitle("Apple receipt sync"))
	receipts, err := mailClient.FetchReceipts(ctx, fetchOpts)
	if err != nil {
		return err
	}
	if len(receipts) == 0 {
		fmt.Println(cli.FormatWarning("No receipts found"))
		return nil
	}

	txns, err := loadTransactions(ctx, client, budgetID, ofxPath, after)
	if err != nil {
		return err
	}

	result, err := reconciler.SyncReceipts(ctx, receipts, txns, dryRun)
	if err != nil {
		return err
	}

	displaySyncResult(result, dryRun)
	return nil
}
