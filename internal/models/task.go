package models

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of an agent task.
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ParseTaskStatus validates a status string.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Mode selects the capability set handed to a spawned agent.
type Mode string

const (
	ModeInvestigate Mode = "investigate"
	ModeImplement   Mode = "implement"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeInvestigate || m == ModeImplement
}

// KilledExitCode is recorded when a task is terminated by Kill.
const KilledExitCode = -1

// AgentTask is one spawned agent subprocess and its tracked lifecycle.
type AgentTask struct {
	ID           string     `json:"id"`
	Project      string     `json:"project"`
	SessionID    string     `json:"session_id,omitempty"`
	Agent        string     `json:"agent"`
	Description  string     `json:"description"`
	Mode         Mode       `json:"mode"`
	Status       TaskStatus `json:"status"`
	PID          *int       `json:"pid,omitempty"`
	LogPath      string     `json:"log_path"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	InputTokens  int64      `json:"input_tokens"`
	OutputTokens int64      `json:"output_tokens"`

	// UsageReported is false until token usage has been found in the transcript.
	UsageReported bool `json:"usage_reported"`
}

// NewAgentTask creates a running task record.
func NewAgentTask(id, project, sessionID, agent, description string, mode Mode, logPath string) *AgentTask {
	return &AgentTask{
		ID:          id,
		Project:     project,
		SessionID:   sessionID,
		Agent:       agent,
		Description: description,
		Mode:        mode,
		Status:      TaskStatusRunning,
		LogPath:     logPath,
		StartedAt:   time.Now().UTC(),
	}
}

// Finish moves a running task to its terminal state. Completion time and
// exit code are set together. Returns false if the task was already terminal.
func (t *AgentTask) Finish(status TaskStatus, exitCode *int) bool {
	if t.Status != TaskStatusRunning || !status.Terminal() {
		return false
	}
	now := time.Now().UTC()
	t.Status = status
	t.CompletedAt = &now
	t.ExitCode = exitCode
	t.PID = nil
	return true
}

// Clone returns a copy safe to hand out of a locked table.
func (t *AgentTask) Clone() *AgentTask {
	c := *t
	if t.PID != nil {
		pid := *t.PID
		c.PID = &pid
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.ExitCode != nil {
		code := *t.ExitCode
		c.ExitCode = &code
	}
	return &c
}

// Duration returns the elapsed run time, up to now for running tasks.
func (t *AgentTask) Duration() time.Duration {
	if t.CompletedAt != nil {
		return t.CompletedAt.Sub(t.StartedAt)
	}
	return time.Since(t.StartedAt)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
