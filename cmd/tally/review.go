package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/tui"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review [budget]",
		Short: "Review uncategorized transactions in a full-screen interface",
		Long: `The same categorization workflow as 'categorize', presented as a
full-screen card interface with a fuzzy category picker. Decisions are applied
when the session ends.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReview,
	}

	cmd.Flags().Int("days", 30, "how many days back to look for transactions")
	cmd.Flags().Bool("all", false, "consider all transactions regardless of age")
	cmd.Flags().Bool("dry-run", false, "decide but do not save anything")
	cmd.Flags().String("ofx", "", "read transactions from an OFX/QFX export instead of the budget API")
	return cmd
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	queue, err := loadReviewQueue(ctx, cmd, args)
	if err != nil {
		return err
	}
	if len(queue.txns) == 0 {
		fmt.Println(cli.FormatSuccess("Nothing to review"))
		return nil
	}

	items := make([]tui.Item, 0, len(queue.txns))
	for i := range queue.txns {
		txn := queue.txns[i]

		suggestion, err := queue.suggester.Suggest(ctx, txn.PayeeName)
		if err != nil {
			return err
		}
		items = append(items, tui.Item{
			Transaction:     txn,
			Suggestion:      suggestion,
			PurchaseContext: queue.reconciler.PurchaseContext(ctx, txn.ID),
		})
	}

	decisions, err := tui.Run(ctx, items, queue.categories)
	if err != nil {
		return err
	}

	return queue.apply(context.WithoutCancel(ctx), decisions)
}
