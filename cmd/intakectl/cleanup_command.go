package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cieplik206/dokumenty/config"
	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/storage"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stored blobs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			log := ctx.logger()
			backend := config.GetAppConfig().StorageBackend

			store, err := storage.NewStorage(storage.StorageType(backend), log)
			if err != nil {
				return err
			}

			threshold := time.Now().Add(-olderThan)
			log.Info("Cleaning up storage",
				logger.String("backend", backend),
				logger.Time("threshold", threshold),
			)
			if err := store.CleanupBefore(cmd.Context(), threshold); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s blobs modified before %s\n", backend, threshold.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Retention window")
	return cmd
}
