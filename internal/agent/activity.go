package agent

import (
	"fmt"
	"os"
	"regexp"

	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

// NoOutputMarker is shown for a task whose log has no events yet.
const NoOutputMarker = "(no output yet)"

// DefaultSearchLimit caps SearchActivity when no limit is given.
const DefaultSearchLimit = 50

// ActivityOptions selects a window of a task's events.
type ActivityOptions struct {
	Filter transcript.EventKind
	Offset int
	Limit  int // <= 0 means all
}

// Activity is a projection of a task's parsed transcript.
type Activity struct {
	TaskID   string             `json:"task_id"`
	Status   models.TaskStatus  `json:"status"`
	Events   []transcript.Event `json:"events"`
	Total    int                `json:"total"`
	NoOutput bool               `json:"no_output,omitempty"`
	Issue    *AgentIssue        `json:"issue,omitempty"`
}

func (m *Manager) lookup(taskID string) (*models.AgentTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return e.task.Clone(), nil
}

func (m *Manager) taskEvents(task *models.AgentTask) ([]transcript.Event, bool, error) {
	events, err := m.cache.Events(task.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("failed to read log for %s: %w", task.ID, err)
	}
	return events, len(events) == 0, nil
}

// ReadActivity returns a filtered, paginated view of a task's events. A
// log that does not exist yet is an empty result with NoOutput set.
func (m *Manager) ReadActivity(taskID string, opts ActivityOptions) (*Activity, error) {
	task, err := m.lookup(taskID)
	if err != nil {
		return nil, err
	}
	all, noOutput, err := m.taskEvents(task)
	if err != nil {
		return nil, err
	}

	filtered := transcript.Filter(all, opts.Filter)
	act := &Activity{
		TaskID:   taskID,
		Status:   task.Status,
		Total:    len(filtered),
		NoOutput: noOutput,
		Issue:    ScanIssue(all),
	}
	act.Events = page(filtered, opts.Offset, opts.Limit)
	return act, nil
}

// SearchActivity returns up to limit events matching a regular expression.
func (m *Manager) SearchActivity(taskID, pattern string, limit int) (*Activity, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	task, err := m.lookup(taskID)
	if err != nil {
		return nil, err
	}
	all, noOutput, err := m.taskEvents(task)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	matched := transcript.Search(all, re, limit)
	return &Activity{
		TaskID:   taskID,
		Status:   task.Status,
		Events:   matched,
		Total:    len(matched),
		NoOutput: noOutput,
	}, nil
}

func page(events []transcript.Event, offset, limit int) []transcript.Event {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return []transcript.Event{}
	}
	end := len(events)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return events[offset:end]
}
