package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rosterctl",
		Short:         "Bulk import students, teachers, classes, subjects and parents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newTemplateCmd())
	cmd.AddCommand(newKindsCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newResetCmd())
	return cmd
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
