package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/config"
	"github.com/calvinlock/tally/internal/engine"
	"github.com/calvinlock/tally/internal/gmail"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/ofx"
	"github.com/calvinlock/tally/internal/service"
	"github.com/calvinlock/tally/internal/storage"
	"github.com/calvinlock/tally/internal/ynab"
)

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// initStorage opens the snapshot database and brings its schema current.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dataDir, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate data directory: %w", err)
		}
		dbPath = filepath.Join(dataDir, "tally.db")
	} else {
		dbPath = config.ExpandPath(dbPath)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func ynabClient() (*ynab.Client, error) {
	token := viper.GetString("ynab.token")
	if token == "" {
		return nil, common.NewUserError(
			"No budget API token configured. Set ynab.token in the config file or TALLY_YNAB_TOKEN in the environment",
			common.ErrMissingConfig)
	}
	return ynab.NewClient(token)
}

// resolveBudgetID turns a budget argument into an id: configured aliases win,
// a uuid passes through, anything else is matched against budget names.
func resolveBudgetID(ctx context.Context, client *ynab.Client, nameOrID string) (string, error) {
	if nameOrID == "" {
		if def := viper.GetString("ynab.default_budget"); def != "" {
			nameOrID = def
		} else {
			return "", common.NewUserError(
				"No budget given. Pass one as an argument or set ynab.default_budget",
				common.ErrMissingConfig)
		}
	}

	aliases := viper.GetStringMapString("budgets")
	if id, ok := aliases[strings.ToLower(nameOrID)]; ok {
		return id, nil
	}

	if looksLikeBudgetID(nameOrID) {
		return nameOrID, nil
	}

	budgets, err := client.GetBudgets(ctx)
	if err != nil {
		return "", err
	}
	for _, b := range budgets {
		if strings.EqualFold(b.Name, nameOrID) {
			return b.ID, nil
		}
	}
	return "", common.NewUserError(
		fmt.Sprintf("No budget named %q. Run 'tally budgets' to see what is available", nameOrID),
		common.ErrInvalidBudget)
}

func looksLikeBudgetID(s string) bool {
	return len(s) == 36 && strings.Count(s, "-") == 4
}

// loadTransactions fetches candidate transactions from the API, or from an
// OFX export when one was given.
func loadTransactions(ctx context.Context, client *ynab.Client, budgetID, ofxPath string, since *time.Time) ([]model.Transaction, error) {
	if ofxPath == "" {
		return client.GetTransactions(ctx, budgetID, since)
	}

	f, err := os.Open(config.ExpandPath(ofxPath)) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open OFX file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ofx.NewParser().ParseFile(ctx, f, since)
}

func gmailOAuthConfig() (gmail.OAuthConfig, error) {
	clientID := viper.GetString("google.client_id")
	clientSecret := viper.GetString("google.client_secret")
	if clientID == "" || clientSecret == "" {
		return gmail.OAuthConfig{}, common.NewUserError(
			"No Google OAuth credentials configured. Set google.client_id and google.client_secret",
			common.ErrMissingConfig)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return gmail.OAuthConfig{}, fmt.Errorf("failed to locate data directory: %w", err)
	}

	return gmail.OAuthConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenFile:    filepath.Join(dataDir, "gmail-token.json"),
	}, nil
}

// parseAfterFlag parses --after, accepting YYYY-MM-DD.
func parseAfterFlag(after string) (*time.Time, error) {
	if after == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", after)
	if err != nil {
		return nil, common.NewUserError(
			fmt.Sprintf("Invalid --after date %q, expected YYYY-MM-DD", after), err)
	}
	return &t, nil
}

// displaySyncResult prints a sync run the way humans want to read it.
func displaySyncResult(result *engine.SyncResult, dryRun bool) {
	fmt.Println()
	fmt.Println(cli.FormatInfo(fmt.Sprintf("%d new records stored, %d candidate transactions", result.NewRecords, result.Candidates)))

	for _, pair := range result.Pairs {
		fmt.Printf("  %s %s  %s  %s %s\n",
			cli.SuccessStyle.Render(cli.SuccessIcon),
			cli.BoldStyle.Render(pair.Transaction.PayeeName),
			cli.FormatMilliunits(pair.Transaction.Amount),
			cli.SubtleStyle.Render(cli.FormatDate(pair.Transaction.Date)),
			cli.SubtleStyle.Render("["+string(pair.Tier)+"]"))
	}
	for _, rec := range result.UnmatchedRecords {
		fmt.Printf("  %s %s  %s  %s\n",
			cli.WarningStyle.Render("•"),
			rec.ID,
			cli.FormatCents(rec.AmountCents),
			cli.SubtleStyle.Render("no matching transaction"))
	}

	switch {
	case dryRun:
		fmt.Println(cli.FormatWarning("Dry run: no links were saved"))
	default:
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("%d matches linked", result.Linked)))
	}
}
