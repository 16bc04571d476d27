package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

func newTemplateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "template <kind>",
		Short: "Print the CSV template for a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseKind(args[0])
			if err != nil {
				return err
			}
			data, err := core.Template(kind)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newKindsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List importable kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := core.All()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), defs)
			}
			for _, def := range defs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s (unique: %s)\n", def.Plural, def.Label, def.CodeLabel)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
