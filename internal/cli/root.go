// Package cli implements the Stipend command-line interface using Cobra.
// Each subcommand maps to one operator capability (run, status, etc.).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stipend",
	Short: "Stipend — autonomous task-allocation coordinator",
	Long: `Stipend watches an external task ledger, assigns work to the workers
most likely to succeed, prices each assignment, verifies submissions,
and learns from every outcome.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
