// Package models contains shared data structures used across the application.
package models

import "time"

// Project is one source tree that agents have been spawned for.
// Name is the base name of the project directory and is unique.
type Project struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	FirstSeen    time.Time `json:"first_seen"`
	LastActivity time.Time `json:"last_activity"`
	ActiveTasks  int       `json:"active_tasks"`
}

// SessionStatus represents whether a supervisor session is still open.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// Session is one lifetime of a supervisor for a project.
type Session struct {
	ID        string        `json:"id"`
	Project   string        `json:"project"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Status    SessionStatus `json:"status"`
}

// Stats aggregates task counts and token totals across the store.
type Stats struct {
	Projects     int   `json:"projects"`
	Total        int   `json:"total"`
	Running      int   `json:"running"`
	Completed    int   `json:"completed"`
	Failed       int   `json:"failed"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}
