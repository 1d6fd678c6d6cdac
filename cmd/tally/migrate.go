package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinlock/tally/internal/cli"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the local database",
		Long: `Opens the local database and applies any pending schema migrations.
Other commands run migrations automatically; this exists for checking that the
database is healthy without doing anything else.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Println(cli.FormatSuccess("Database schema is up to date"))
			return nil
		},
	}
}
