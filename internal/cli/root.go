package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "pilot — an agent-driven code change pipeline",
	Long: `pilot drives a change request through a five-stage agent pipeline:
plan, code, review, test, evaluate. Every file mutation happens inside an
isolated workspace through a transactional patch engine, so a failed run
leaves nothing behind.

All state is stored in ~/.pilot/ (SQLite for events, JSON for run artifacts).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
}
