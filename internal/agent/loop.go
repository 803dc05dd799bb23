package agent

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

// event is a message handled by the supervisor's event loop. Every state
// transition of a task happens on the loop goroutine.
type event interface {
	apply(m *Manager)
	// handled returns a channel closed once the event has been applied,
	// or nil if the sender does not wait.
	handled() <-chan struct{}
}

func (m *Manager) run() {
	defer close(m.loopDone)
	for {
		select {
		case ev := <-m.events:
			ev.apply(m)
		case <-m.quit:
			return
		}
	}
}

// exitEvent reports that a task's process ended. vanished means the OS
// no longer knew the pid before Wait returned, so the exit code is unknown.
type exitEvent struct {
	taskID   string
	code     int
	vanished bool
	reply    chan struct{}
}

func (ev *exitEvent) handled() <-chan struct{} {
	if ev.reply == nil {
		return nil
	}
	return ev.reply
}

func (ev *exitEvent) apply(m *Manager) {
	if ev.reply != nil {
		defer close(ev.reply)
	}
	m.handleExit(ev)
}

// handleExit applies the running → completed|failed transition, appends
// the footer, mirrors the status and then any token usage. It runs once
// per task; later exit events for the same task are ignored.
func (m *Manager) handleExit(ev *exitEvent) {
	m.mu.Lock()
	e, ok := m.tasks[ev.taskID]
	if !ok || e.exited {
		m.mu.Unlock()
		return
	}
	e.exited = true

	changed := false
	if e.task.Status == models.TaskStatusRunning {
		status := models.TaskStatusFailed
		var exitCode *int
		if ev.vanished {
			status = models.TaskStatusCompleted
		} else {
			exitCode = models.IntPtr(ev.code)
			if ev.code == 0 {
				status = models.TaskStatusCompleted
			}
		}
		changed = e.task.Finish(status, exitCode)
	}
	snapshot := e.task.Clone()
	m.mu.Unlock()

	if err := config.AppendLogFooter(snapshot.LogPath, snapshot); err != nil {
		log.Printf("[supervisor] failed to append footer for %s: %v", snapshot.ID, err)
	}
	if changed {
		m.mirror("update status "+snapshot.ID, func(ctx context.Context, s Store) error {
			return s.UpdateTaskStatus(ctx, snapshot.ID, snapshot.Status, snapshot.ExitCode, *snapshot.CompletedAt)
		})
	}
	log.Printf("[supervisor] task %s (%s) exited: status=%s exit=%s", snapshot.ID, snapshot.Agent, snapshot.Status, formatExit(snapshot.ExitCode))

	m.recordUsage(snapshot.ID, snapshot.LogPath)
}

func (m *Manager) recordUsage(taskID, logPath string) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		log.Printf("[supervisor] failed to read log for %s: %v", taskID, err)
		return
	}
	usage, found := transcript.ExtractUsage(string(data))
	if !found {
		return
	}

	m.mu.Lock()
	if e, ok := m.tasks[taskID]; ok {
		e.task.InputTokens = max(e.task.InputTokens, usage.InputTokens)
		e.task.OutputTokens = max(e.task.OutputTokens, usage.OutputTokens)
		e.task.UsageReported = true
	}
	m.mu.Unlock()

	m.mirror("update tokens "+taskID, func(ctx context.Context, s Store) error {
		return s.UpdateTaskTokens(ctx, taskID, usage.InputTokens, usage.OutputTokens)
	})
}

type killReply struct {
	task *models.AgentTask
	err  error
}

type killEvent struct {
	taskID string
	reply  chan killReply
}

func (ev *killEvent) handled() <-chan struct{} { return nil }

func (ev *killEvent) apply(m *Manager) {
	task, err := m.handleKill(ev.taskID)
	ev.reply <- killReply{task: task, err: err}
}

func (m *Manager) handleKill(taskID string) (*models.AgentTask, error) {
	m.mu.Lock()
	e, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if e.task.Status != models.TaskStatusRunning {
		status := e.task.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRunning, taskID, status)
	}
	if e.proc != nil && e.task.PID != nil {
		if err := e.proc.terminate(); err != nil {
			log.Printf("[supervisor] failed to signal task %s (pid %d): %v", taskID, e.proc.pid, err)
		}
	}
	e.task.Finish(models.TaskStatusFailed, models.IntPtr(models.KilledExitCode))
	snapshot := e.task.Clone()
	m.mu.Unlock()

	m.mirror("update status "+taskID, func(ctx context.Context, s Store) error {
		return s.UpdateTaskStatus(ctx, taskID, snapshot.Status, snapshot.ExitCode, *snapshot.CompletedAt)
	})
	log.Printf("[supervisor] killed task %s (%s)", taskID, snapshot.Agent)
	return snapshot, nil
}

func formatExit(code *int) string {
	if code == nil {
		return "none"
	}
	return fmt.Sprint(*code)
}
