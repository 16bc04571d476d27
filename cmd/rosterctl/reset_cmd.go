package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rosterimport/internal/admin"
	"github.com/JonMunkholm/rosterimport/internal/store"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all imported records, accounts and run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes every record; pass --yes to confirm")
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			backend, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
			}
			defer backend.Close()

			deleted, err := (&admin.Reset{Store: backend, Log: logger}).ResetAll(cmd.Context())
			for _, table := range admin.Tables() {
				if n, ok := deleted[table]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", table, n)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
