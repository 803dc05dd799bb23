package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/watchfire-io/agentwatch/internal/client"
	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

var (
	logsFollow bool
	logsKind   string
	logsRaw    bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <task-id>",
	Short: "Print a task's transcript",
	Long: `Print the parsed transcript of a task.

With --follow the transcript is streamed from the dashboard (started if
needed) until the task finishes or you press Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream new events as they are written")
	logsCmd.Flags().StringVarP(&logsKind, "kind", "k", "", "only events of this kind (text, tool_call, tool_result, result, error)")
	logsCmd.Flags().BoolVar(&logsRaw, "raw", false, "print the raw log file instead of parsed events")
}

func runLogs(cmd *cobra.Command, args []string) error {
	var kind transcript.EventKind
	if logsKind != "" {
		k, err := transcript.ParseKind(logsKind)
		if err != nil {
			return err
		}
		kind = k
	}

	if logsFollow {
		return followLog(cmd.Context(), args[0], kind)
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	task, err := st.GetTask(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("task %s: %w", args[0], err)
	}
	d, err := config.ReadTaskLog(task.LogPath, 0)
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}

	if logsRaw {
		fmt.Print(d.Content)
		return nil
	}
	events := transcript.Parse(d.Content)
	if kind != "" {
		events = transcript.Filter(events, kind)
	}
	for _, ev := range events {
		printEvent(ev)
	}
	return nil
}

// followLog streams one task's log through the dashboard and prints events
// as they complete.
func followLog(ctx context.Context, taskID string, kind transcript.EventKind) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := EnsureDashboard()
	if err != nil {
		return err
	}
	frames, err := c.SubscribeLog(ctx, taskID)
	if err != nil {
		return err
	}

	buf := client.NewLogBuffer(taskID)
	p := &eventPrinter{kind: kind}

	for f := range frames {
		switch f.Type {
		case models.FrameError:
			return errors.New(f.Error)
		case models.FrameKeepalive:
			if taskFinished(ctx, c, taskID) {
				return nil
			}
			continue
		}

		changed, err := buf.Apply(f)
		if errors.Is(err, client.ErrGap) {
			changed, err = buf.Refill(ctx, c)
		}
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		for _, ev := range p.next(buf.Events()) {
			printEvent(ev)
		}
		if p.sawResult && taskFinished(ctx, c, taskID) {
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("dashboard closed the stream")
}

func taskFinished(ctx context.Context, c *client.Client, taskID string) bool {
	t, err := c.Task(ctx, taskID)
	return err == nil && t.Status.Terminal()
}

// eventPrinter tracks which events of a growing transcript were already
// printed.
type eventPrinter struct {
	kind      transcript.EventKind
	printed   int
	sawResult bool
}

// next returns the events not yet printed. The final result replaces an
// identical trailing text event once it arrives, so the event count can
// stay flat while the last event changes kind; a new result is still
// returned in that case.
func (p *eventPrinter) next(events []transcript.Event) []transcript.Event {
	var out []transcript.Event
	if p.printed < len(events) {
		out = events[p.printed:]
		p.printed = len(events)
	} else if n := len(events); n > 0 && !p.sawResult && events[n-1].Kind == transcript.KindResult {
		out = events[n-1:]
	}
	for _, ev := range out {
		if ev.Kind == transcript.KindResult {
			p.sawResult = true
		}
	}
	if p.kind != "" {
		out = transcript.Filter(out, p.kind)
	}
	return out
}

func printEvent(ev transcript.Event) {
	fmt.Println(formatEvent(ev))
}

func formatEvent(ev transcript.Event) string {
	switch ev.Kind {
	case transcript.KindToolCall:
		line := paint(styleBrand, "▸ "+ev.Tool)
		if ev.ToolInput != "" {
			line += " " + paint(styleHint, ev.ToolInput)
		}
		return line
	case transcript.KindToolResult:
		return paint(styleHint, indent(ev.Content, "  "))
	case transcript.KindResult:
		head := paint(styleSuccess, "✓ result")
		if ev.Stats != nil {
			head += paint(styleHint, fmt.Sprintf(" (%d turns, %d in / %d out)",
				ev.Stats.NumTurns, ev.Stats.InputTokens, ev.Stats.OutputTokens))
		}
		if ev.Content == "" {
			return head
		}
		return head + "\n" + ev.Content
	case transcript.KindError:
		return paint(styleError, "✗ error: ") + ev.Content
	}
	return ev.Content
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
