package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/watchfire-io/agentwatch/internal/client"
	"github.com/watchfire-io/agentwatch/internal/models"
)

const requestTimeout = 5 * time.Second

func connectCmd(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		h, err := c.Health(ctx)
		if err != nil {
			return DisconnectedMsg{Err: err}
		}
		return ConnectedMsg{Version: h.Version}
	}
}

// subscribeAgentsCmd opens the agents stream and forwards its frames to
// the program until ctx ends or the stream drops.
func subscribeAgentsCmd(ctx context.Context, c *client.Client, project string, program *programRef) tea.Cmd {
	return func() tea.Msg {
		frames, err := c.SubscribeAgents(ctx, project)
		if err != nil {
			return DisconnectedMsg{Err: err}
		}

		go func() {
			for f := range frames {
				switch {
				case f.Type == models.FrameError:
					program.Send(ErrorMsg{Err: errors.New(f.Error)})
				case f.Tasks != nil:
					program.Send(AgentsMsg{Tasks: f.Tasks})
				}
			}
			if ctx.Err() == nil {
				program.Send(DisconnectedMsg{Err: errors.New("agents stream closed")})
			}
		}()
		return nil
	}
}

// subscribeLogCmd opens the log stream of one task.
func subscribeLogCmd(ctx context.Context, c *client.Client, taskID string, program *programRef) tea.Cmd {
	return func() tea.Msg {
		frames, err := c.SubscribeLog(ctx, taskID)
		if err != nil {
			return ErrorMsg{Err: fmt.Errorf("failed to open log for %s: %w", shortID(taskID), err)}
		}

		go func() {
			for f := range frames {
				program.Send(LogFrameMsg{TaskID: taskID, Frame: f})
			}
			if ctx.Err() == nil {
				program.Send(LogEndedMsg{TaskID: taskID})
			}
		}()
		return nil
	}
}

// fetchLogDeltaCmd reads a task log from offset over HTTP.
func fetchLogDeltaCmd(c *client.Client, taskID string, offset int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		d, err := c.LogDelta(ctx, taskID, offset)
		if err != nil {
			return ErrorMsg{Err: fmt.Errorf("failed to read log: %w", err)}
		}
		return LogDeltaMsg{TaskID: taskID, Delta: d}
	}
}

func loadStatsCmd(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		st, err := c.Stats(ctx)
		if err != nil {
			return nil
		}
		return StatsMsg{Stats: st}
	}
}

func statsTick() tea.Cmd {
	return tea.Tick(5*time.Second, func(_ time.Time) tea.Msg {
		return statsTickMsg{}
	})
}

func spinnerTick() tea.Cmd {
	return tea.Tick(400*time.Millisecond, func(_ time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func clearErrorAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

func reconnectTick() tea.Cmd {
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return ReconnectMsg{}
	})
}
