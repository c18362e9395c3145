package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/internal/repository"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = config.GetAppConfig().DatabaseURL
			}
			if databaseURL == "" {
				return errors.New("no database configured: set DATABASE_URL or pass --database-url")
			}

			db, err := repository.Connect(cmd.Context(), databaseURL, repository.CLIPoolOptions(), ctx.logger())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.RunMigrations(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	return cmd
}
