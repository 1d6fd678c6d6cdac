package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/calvinlock/tally/internal/cli"
	"github.com/calvinlock/tally/internal/model"
)

func budgetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budgets",
		Short: "List the budgets your token can see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ynabClient()
			if err != nil {
				return err
			}

			budgets, err := client.GetBudgets(cmd.Context())
			if err != nil {
				return err
			}
			if len(budgets) == 0 {
				fmt.Println(cli.FormatWarning("No budgets found"))
				return nil
			}

			fmt.Println(cli.FormatTitle("Budgets"))
			for _, b := range budgets {
				fmt.Printf("  %s  %s  %s\n",
					cli.BoldStyle.Render(b.Name),
					cli.SubtleStyle.Render(b.ID),
					cli.SubtleStyle.Render("modified "+cli.FormatDate(b.LastModified)))
			}
			return nil
		},
	}
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [budget]",
		Short: "List a budget's categories by group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := ynabClient()
			if err != nil {
				return err
			}
			budgetArg := ""
			if len(args) > 0 {
				budgetArg = args[0]
			}
			budgetID, err := resolveBudgetID(ctx, client, budgetArg)
			if err != nil {
				return err
			}

			categories, err := client.GetCategories(ctx, budgetID)
			if err != nil {
				return err
			}
			if len(categories) == 0 {
				fmt.Println(cli.FormatWarning("No categories found"))
				return nil
			}

			groups := make(map[string][]model.Category)
			var order []string
			for _, cat := range categories {
				if _, seen := groups[cat.GroupName]; !seen {
					order = append(order, cat.GroupName)
				}
				groups[cat.GroupName] = append(groups[cat.GroupName], cat)
			}

			fmt.Println(cli.FormatTitle("Categories"))
			for _, group := range order {
				fmt.Println(cli.BoldStyle.Render(group))
				cats := groups[group]
				sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
				for _, cat := range cats {
					fmt.Printf("  %s  %s\n", cat.Name, cli.SubtleStyle.Render(cat.ID))
				}
			}
			return nil
		},
	}
}
