package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

func newImportCmd() *cobra.Command {
	var (
		classID    string
		wait       bool
		dryRun     bool
		asJSON     bool
		noAccounts bool
	)

	cmd := &cobra.Command{
		Use:   "import <kind> <file.csv>",
		Short: "Import a CSV file; use - to read stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseKind(args[0])
			if err != nil {
				return err
			}

			var src io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("open source: %w", err)
				}
				defer f.Close()
				src = f
			}

			a, err := newApp(cmd.Context(), !noAccounts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			opts := core.Options{ClassID: classID, WaitForEffects: wait, DryRun: dryRun}
			result, err := a.service.Import(cmd.Context(), kind, src, opts, nil)
			if result == nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if werr := writeJSON(out, result); werr != nil {
					return werr
				}
			} else {
				printResult(out, filepath.Base(args[1]), result)
			}
			if err != nil {
				return fmt.Errorf("%s: %s", core.FormatUserError(err), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&classID, "class-id", "", "Attach every imported subject to this class")
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for account provisioning and report its failures")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without writing anything")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&noAccounts, "no-accounts", false, "Skip account provisioning for this run")
	return cmd
}

func printResult(w io.Writer, source string, r *core.ImportResult) {
	def, _ := core.Definition(r.Kind)
	verb := "Imported"
	if r.DryRun {
		verb = "Validated"
	}
	fmt.Fprintf(w, "%s %d of %d %s from %s (run %s, %s)\n",
		verb, r.Succeeded, r.Total, def.Plural, source, r.RunID, r.Duration.Round(time.Millisecond))

	for _, e := range r.Entities {
		fmt.Fprintf(w, "  + %s\t%s\n", e.Code, e.ID)
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(w, "  ! %s\n", msg)
	}
	for _, msg := range r.Warnings {
		fmt.Fprintf(w, "  ~ %s\n", msg)
	}
	for _, fe := range r.EffectErrors {
		fmt.Fprintf(w, "  ! Row %d: %s: %s\n", fe.Row, fe.Effect, fe.Message)
	}
}
