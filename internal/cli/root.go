// Package cli implements the addrnorm command line: batch normalization of
// CSV and XLSX files and rule profile inspection.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "addrnorm",
		Short:        "Normalize address fields in CSV and XLSX files",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// A missing .env is fine; an explicit one must exist
			if envFile == "" {
				_ = godotenv.Overload()
				return nil
			}
			return godotenv.Overload(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default: .env when present)")
	cmd.AddCommand(normalizeCmd())
	cmd.AddCommand(profileCmd())
	return cmd
}
