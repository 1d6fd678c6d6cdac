package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/suggest"
)

func patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Show what the suggester has learned",
		Long: `Lists every learned payee pattern with its category, track record, and
the confidence tier it currently earns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			patterns, err := store.GetAllPatterns(ctx)
			if err != nil {
				return err
			}
			if len(patterns) == 0 {
				fmt.Println(cli.FormatInfo("Nothing learned yet. Run 'tally categorize' to start"))
				return nil
			}

			sort.Slice(patterns, func(i, j int) bool {
				if patterns[i].CorrectCount != patterns[j].CorrectCount {
					return patterns[i].CorrectCount > patterns[j].CorrectCount
				}
				return patterns[i].PayeeName < patterns[j].PayeeName
			})

			fmt.Println(cli.FormatTitle("Learned patterns"))
			tiers := map[suggest.Confidence]int{}
			for i := range patterns {
				p := &patterns[i]
				confidence := suggest.DeriveConfidence(p)
				tiers[confidence]++

				fmt.Printf("  %s %s %s %s %s\n",
					cli.ConfidenceIcon(confidence),
					cli.BoldStyle.Render(p.PayeeName),
					"→ "+p.CategoryName,
					cli.SubtleStyle.Render(fmt.Sprintf("%d✓ %d✗", p.CorrectCount, p.IncorrectCount)),
					cli.SubtleStyle.Render("last used "+cli.FormatDate(p.LastUsed)))
			}

			fmt.Println()
			fmt.Println(cli.InfoStyle.Render(fmt.Sprintf("%s %d patterns: %d high, %d medium, %d low confidence",
				cli.ChartIcon, len(patterns),
				tiers[suggest.ConfidenceHigh], tiers[suggest.ConfidenceMedium], tiers[suggest.ConfidenceLow])))
			return nil
		},
	}
}
