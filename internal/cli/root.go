// Package cli implements the agentwatch CLI commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/watchfire-io/agentwatch/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "agentwatch",
	Short: "Supervise coding agent subprocesses and watch them work",
	Long: `agentwatch spawns coding agents as supervised subprocesses, records every
task in a shared store, and streams their transcripts to a live dashboard.

Run 'agentwatch mcp' from an MCP client to expose the supervisor as tools.
Run 'agentwatch watch' to follow all agents in the terminal.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv()
		initStyles()
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add subcommands (alphabetical)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
}
