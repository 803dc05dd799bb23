package tui

import (
	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
)

// ConnectedMsg signals the dashboard answered its health check.
type ConnectedMsg struct {
	Version string
}

// DisconnectedMsg signals the dashboard connection was lost.
type DisconnectedMsg struct {
	Err error
}

// AgentsMsg carries a full task list from the agents stream.
type AgentsMsg struct {
	Tasks []*models.AgentTask
}

// StatsMsg carries aggregate counts.
type StatsMsg struct {
	Stats *models.Stats
}

// LogFrameMsg carries one frame of the open task's log stream.
type LogFrameMsg struct {
	TaskID string
	Frame  *models.StreamFrame
}

// LogDeltaMsg carries an HTTP delta read used to fill a gap.
type LogDeltaMsg struct {
	TaskID string
	Delta  *config.LogDelta
}

// LogEndedMsg signals the log stream for a task closed.
type LogEndedMsg struct {
	TaskID string
}

// ErrorMsg carries an error to display.
type ErrorMsg struct {
	Err error
}

// ClearErrorMsg clears the error display.
type ClearErrorMsg struct{}

// ReconnectMsg triggers a reconnection attempt.
type ReconnectMsg struct{}

// statsTickMsg triggers a stats refresh.
type statsTickMsg struct{}

// spinnerTickMsg advances the animated spinner for running tasks.
type spinnerTickMsg struct{}
