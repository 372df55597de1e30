// Package cli implements the taskme command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskme",
	Short: "Goal-commitment economy daemon",
	Long: `taskme runs the goal-commitment economy core: an append-only credit
ledger, evidence-backed approval workflow, daily streak tracking, and
atomic reward dispatch. Start the daemon with 'taskme serve' and interact
through the HTTP API or the CLI subcommands.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
