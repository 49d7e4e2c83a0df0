// Package main is the CLI entry point for ARIA, a local-first single-agent
// execution runtime: one kernel step loop, a hash-chained audit trail, and
// an out-of-process sandbox, all driven through the operations of spec §6.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes per spec §6.
const (
	exitSuccess                 = 0
	exitUserError               = 2
	exitBudgetExceeded          = 3
	exitToolFailure             = 4
	exitModelFailure            = 5
	exitFatalInvariantViolation = 10
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitUserError)
	}
}

func buildRootCmd() *cobra.Command {
	var manifestsDir string

	rootCmd := &cobra.Command{
		Use:          "aria",
		Short:        "ARIA - a local-first single-agent execution runtime",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&manifestsDir, "manifests-dir", "manifests", "directory of tool manifests to load")

	rootCmd.AddCommand(
		buildRunCmd(&manifestsDir),
		buildToolsCmd(&manifestsDir),
		buildAuditCmd(&manifestsDir),
	)
	return rootCmd
}
