package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/store"
)

var (
	tasksProject string
	tasksSession string
	tasksStatus  string
	tasksLimit   int
	tasksJSON    bool
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"ls"},
	Short:   "List agent tasks from the shared store",
	Args:    cobra.NoArgs,
	RunE:    runTasksList,
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksProject, "project", "p", "", "only tasks of this project")
	tasksCmd.Flags().StringVar(&tasksSession, "session", "", "only tasks of this supervisor session")
	tasksCmd.Flags().StringVarP(&tasksStatus, "status", "s", "", "only tasks in this status (running, completed, failed)")
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 50, "maximum number of tasks")
	tasksCmd.PersistentFlags().BoolVar(&tasksJSON, "json", false, "print JSON")

	tasksCmd.AddCommand(tasksShowCmd)
}

func runTasksList(cmd *cobra.Command, args []string) error {
	f := store.TaskFilter{
		Project:   tasksProject,
		SessionID: tasksSession,
		Limit:     tasksLimit,
	}
	if tasksStatus != "" {
		s, err := models.ParseTaskStatus(tasksStatus)
		if err != nil {
			return err
		}
		f.Status = s
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListTasks(cmd.Context(), f)
	if err != nil {
		return err
	}

	if tasksJSON {
		if tasks == nil {
			tasks = []*models.AgentTask{}
		}
		return printJSON(tasks)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks. Spawn an agent with the spawn_agent tool of 'agentwatch mcp'.")
		return nil
	}

	groups := make(map[models.TaskStatus][]*models.AgentTask, 3)
	for _, t := range tasks {
		groups[t.Status] = append(groups[t.Status], t)
	}

	width := terminalWidth()
	printTaskGroup("Running", groups[models.TaskStatusRunning], width)
	printTaskGroup("Failed", groups[models.TaskStatusFailed], width)
	printTaskGroup("Completed", groups[models.TaskStatusCompleted], width)
	return nil
}

func runTasksShow(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.GetTask(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("task %s: %w", args[0], err)
	}
	if tasksJSON {
		return printJSON(t)
	}

	fmt.Printf("%s %s\n", statusBadge(t.Status), paint(styleCommand, t.ID))
	printField("Project", t.Project)
	printField("Agent", t.Agent)
	printField("Mode", string(t.Mode))
	printField("Status", string(t.Status))
	printField("Started", t.StartedAt.Local().Format(time.DateTime))
	printField("Duration", formatDuration(t.Duration()))
	if t.ExitCode != nil {
		printField("Exit code", fmt.Sprint(*t.ExitCode))
	}
	if t.PID != nil {
		printField("PID", fmt.Sprint(*t.PID))
	}
	if t.UsageReported {
		printField("Tokens", fmt.Sprintf("%d in / %d out", t.InputTokens, t.OutputTokens))
	}
	printField("Log", t.LogPath)
	if t.SessionID != "" {
		printField("Session", t.SessionID)
	}
	fmt.Printf("\n%s\n", t.Description)
	return nil
}

func printTaskGroup(name string, tasks []*models.AgentTask, width int) {
	if len(tasks) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", paint(styleValue, name), len(tasks))
	for _, t := range tasks {
		fmt.Println("  " + formatTaskRow(t, width-2))
	}
}

// formatTaskRow renders one task as "● id agent mode duration description",
// with the description cut to fit width display cells.
func formatTaskRow(t *models.AgentTask, width int) string {
	id := t.ID
	if len(id) > 8 {
		id = id[:8]
	}
	agent := runewidth.FillRight(runewidth.Truncate(t.Agent, 14, "…"), 14)
	mode := runewidth.FillRight(string(t.Mode), 11)
	dur := runewidth.FillLeft(formatDuration(t.Duration()), 7)

	prefix := fmt.Sprintf("%s %s  %s %s %s  ", statusBadge(t.Status), id, agent, mode, dur)
	prefixWidth := 2 + runewidth.StringWidth(id) + 2 + 14 + 1 + 11 + 1 + 7 + 2

	desc := strings.ReplaceAll(t.Description, "\n", " ")
	if width > prefixWidth {
		desc = runewidth.Truncate(desc, width-prefixWidth, "…")
	}
	return prefix + paint(styleHint, desc)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// terminalWidth returns the stdout width, or 0 when it is not a terminal.
func terminalWidth() int {
	if !colorOutput {
		return 0
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
