package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/watchfire-io/agentwatch/internal/tui"
)

var watchProject string

var watchCmd = &cobra.Command{
	Use:   "watch [task-id]",
	Short: "Open the terminal dashboard",
	Long: `Open the live terminal dashboard. The dashboard server is started if it is
not already running. Pass a task id to open its transcript directly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchProject, "project", "p", "", "only show agents of this project")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("watch needs an interactive terminal; use 'agentwatch logs -f' instead")
	}

	c, err := EnsureDashboard()
	if err != nil {
		return err
	}

	opts := tui.Options{Project: watchProject}
	if len(args) == 1 {
		opts.TaskID = args[0]
	}
	return tui.Run(c, opts)
}
