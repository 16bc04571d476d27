package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rosterimport/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = false

			backend, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
			}
			defer backend.Close()

			if err := backend.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema up to date", "driver", cfg.Database.Driver)
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
