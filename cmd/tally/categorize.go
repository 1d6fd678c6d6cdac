package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/engine"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/suggest"
	"github.com/calvinlock/tally/internal/ynab"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize [budget]",
		Short: "Interactively categorize uncategorized transactions",
		Long: `Walks through every uncategorized transaction, showing the matched order
or receipt alongside a learned category suggestion. Each decision teaches the
suggester, so the suggestions get better the more you use it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCategorize,
	}

	cmd.Flags().Int("days", 30, "how many days back to look for transactions")
	cmd.Flags().Bool("all", false, "consider all transactions regardless of age")
	cmd.Flags().Bool("dry-run", false, "decide but do not save anything")
	cmd.Flags().String("ofx", "", "read transactions from an OFX/QFX export instead of the budget API")
	return cmd
}

func runCategorize(cmd *cobra.Command, args []string) error {
	handler := cli.NewInterruptHandler(os.Stdout)
	ctx := handler.HandleInterrupts(cmd.Context())

	queue, err := loadReviewQueue(ctx, cmd, args)
	if err != nil {
		return err
	}
	if len(queue.txns) == 0 {
		fmt.Println(cli.FormatSuccess("Nothing to categorize"))
		return nil
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Categorizing %d transactions", len(queue.txns))))

	prompter := cli.NewPrompter(os.Stdin, os.Stdout, queue.categories)
	var decisions []cli.Decision
	for i := range queue.txns {
		txn := queue.txns[i]

		suggestion, err := queue.suggester.Suggest(ctx, txn.PayeeName)
		if err != nil {
			return err
		}
		purchaseContext := queue.reconciler.PurchaseContext(ctx, txn.ID)

		decision, err := prompter.Decide(ctx, txn, purchaseContext, suggestion)
		if errors.Is(err, cli.ErrQuit) || errors.Is(err, cli.ErrInputCancelled) || errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			return err
		}
		if decision.Skipped {
			continue
		}
		decisions = append(decisions, decision)
	}

	return queue.apply(context.WithoutCancel(ctx), decisions)
}

// reviewQueue bundles everything a categorization session needs.
type reviewQueue struct {
	txns       []model.Transaction
	categories []model.Category
	suggester  *suggest.Suggester
	reconciler *engine.Reconciler
	client     *ynab.Client
	budgetID   string
	ofxPath    string
	dryRun     bool
	closeFn    func() error
}

// loadReviewQueue resolves flags shared by categorize and review into a ready
// session: transactions to decide on, the category list, and the suggester.
func loadReviewQueue(ctx context.Context, cmd *cobra.Command, args []string) (*reviewQueue, error) {
	days, _ := cmd.Flags().GetInt("days")
	all, _ := cmd.Flags().GetBool("all")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ofxPath, _ := cmd.Flags().GetString("ofx")

	var since *time.Time
	if !all {
		t := time.Now().AddDate(0, 0, -days)
		since = &t
	}

	client, err := ynabClient()
	if err != nil {
		return nil, err
	}
	budgetArg := ""
	if len(args) > 0 {
		budgetArg = args[0]
	}
	budgetID, err := resolveBudgetID(ctx, client, budgetArg)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	reconciler, err := engine.NewReconciler(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	categories, err := client.GetCategories(ctx, budgetID)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var txns []model.Transaction
	if ofxPath == "" {
		txns, err = client.GetUncategorizedTransactions(ctx, budgetID, since)
	} else {
		var loaded []model.Transaction
		loaded, err = loadTransactions(ctx, client, budgetID, ofxPath, since)
		for _, txn := range loaded {
			if txn.IsUncategorized() {
				txns = append(txns, txn)
			}
		}
	}
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &reviewQueue{
		txns:       txns,
		categories: categories,
		suggester:  suggest.NewSuggester(store),
		reconciler: reconciler,
		client:     client,
		budgetID:   budgetID,
		ofxPath:    ofxPath,
		dryRun:     dryRun,
		closeFn:    store.Close,
	}, nil
}

// apply writes the session's decisions: category reassignments to the budget
// service and learning updates to the pattern store. Dry runs write nothing.
func (q *reviewQueue) apply(ctx context.Context, decisions []cli.Decision) error {
	defer func() { _ = q.closeFn() }()

	if len(decisions) == 0 {
		fmt.Println(cli.FormatInfo("No decisions recorded"))
		return nil
	}
	if q.dryRun {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Dry run: %d decisions discarded", len(decisions))))
		return nil
	}

	updates := make([]model.CategoryUpdate, 0, len(decisions))
	for _, d := range decisions {
		updates = append(updates, model.CategoryUpdate{
			TransactionID: d.Transaction.ID,
			PayeeName:     d.Transaction.PayeeName,
			CategoryID:    d.CategoryID,
			CategoryName:  d.CategoryName,
			Amount:        d.Transaction.Amount,
		})
	}

	switch {
	case q.ofxPath != "":
		// OFX transaction ids are bank-side and mean nothing to the budget
		// service, so only the pattern store learns from this session.
		fmt.Println(cli.FormatWarning("OFX session: decisions train suggestions but are not written to the budget"))
	default:
		if err := q.client.UpdateCategories(ctx, q.budgetID, updates); err != nil {
			return err
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("%d transactions categorized", len(updates))))
	}

	for _, d := range decisions {
		if err := q.suggester.RecordChoice(ctx, d.Transaction.PayeeName, d.CategoryID, d.CategoryName, d.Accepted); err != nil {
			fmt.Println(cli.FormatWarning("Failed to record decision for " + d.Transaction.PayeeName))
		}
	}
	return nil
}
