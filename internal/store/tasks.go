package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// DefaultListLimit caps ListTasks when no limit is given.
const DefaultListLimit = 100

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Project   string
	SessionID string
	Status    models.TaskStatus
	Limit     int
}

const taskColumns = `id, project, session_id, agent, description, mode, status, pid, log_path,
	started_at, completed_at, exit_code, input_tokens, output_tokens, usage_reported`

func scanTask(scan func(dest ...any) error) (*models.AgentTask, error) {
	var (
		t             models.AgentTask
		sessionID     sql.NullString
		mode, status  string
		pid, exitCode sql.NullInt64
		started       int64
		completed     sql.NullInt64
		usageReported int
	)
	if err := scan(&t.ID, &t.Project, &sessionID, &t.Agent, &t.Description, &mode, &status, &pid,
		&t.LogPath, &started, &completed, &exitCode, &t.InputTokens, &t.OutputTokens, &usageReported); err != nil {
		return nil, err
	}
	t.SessionID = sessionID.String
	t.Mode = models.Mode(mode)
	t.Status = models.TaskStatus(status)
	t.PID = intPtr(pid)
	t.StartedAt = fromMillis(started)
	t.CompletedAt = timePtr(completed)
	t.ExitCode = intPtr(exitCode)
	t.UsageReported = usageReported != 0
	return &t, nil
}

// InsertTask records a newly spawned task.
func (s *Store) InsertTask(ctx context.Context, t *models.AgentTask) error {
	_, err := s.exec(ctx, `INSERT INTO agent_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Project, nullString(t.SessionID), t.Agent, t.Description, string(t.Mode), string(t.Status),
		nullInt(t.PID), t.LogPath, toMillis(t.StartedAt), nullMillis(t.CompletedAt), nullInt(t.ExitCode),
		t.InputTokens, t.OutputTokens, boolToInt(t.UsageReported))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTaskStatus moves a running task to a terminal status. Status, exit
// code and completion time are written by one statement, and the pid is
// cleared. A task that is already terminal is left untouched.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, exitCode *int, completedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("update task %s: invalid target status %q", id, status)
	}
	res, err := s.exec(ctx, `
		UPDATE agent_tasks
		SET status = ?, exit_code = ?, completed_at = ?, pid = NULL
		WHERE id = ? AND status = ?`,
		string(status), nullInt(exitCode), toMillis(completedAt), id, string(models.TaskStatusRunning))
	if err != nil {
		return fmt.Errorf("update task %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetTask(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTaskTokens records token usage. Counters never decrease.
func (s *Store) UpdateTaskTokens(ctx context.Context, id string, input, output int64) error {
	input, output = max(input, 0), max(output, 0)
	res, err := s.exec(ctx, `
		UPDATE agent_tasks
		SET input_tokens = MAX(input_tokens, ?), output_tokens = MAX(output_tokens, ?), usage_reported = 1
		WHERE id = ?`,
		input, output, id)
	if err != nil {
		return fmt.Errorf("update task %s tokens: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.AgentTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns tasks matching f, newest first.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]*models.AgentTask, error) {
	var (
		where []string
		args  []any
	)
	if f.Project != "" {
		where = append(where, "project = ?")
		args = append(args, f.Project)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := `SELECT ` + taskColumns + ` FROM agent_tasks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.AgentTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Stats aggregates counts by status and token totals.
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects),
			COUNT(*),
			COALESCE(SUM(status = 'running'), 0),
			COALESCE(SUM(status = 'completed'), 0),
			COALESCE(SUM(status = 'failed'), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0)
		FROM agent_tasks`).
		Scan(&st.Projects, &st.Total, &st.Running, &st.Completed, &st.Failed, &st.InputTokens, &st.OutputTokens)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}

// Cleanup deletes non-running tasks started before cutoff and returns the
// deleted rows. Running tasks are never swept.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time) ([]*models.AgentTask, error) {
	var deleted []*models.AgentTask
	err := retryOnBusy(ctx, 5, func() error {
		deleted = nil
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM agent_tasks
			WHERE status != ? AND COALESCE(completed_at, started_at) < ?`,
			string(models.TaskStatusRunning), toMillis(cutoff))
		if err != nil {
			return err
		}
		for rows.Next() {
			t, err := scanTask(rows.Scan)
			if err != nil {
				rows.Close()
				return err
			}
			deleted = append(deleted, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, t := range deleted {
			if _, err := tx.ExecContext(ctx, `DELETE FROM agent_tasks WHERE id = ? AND status != ?`,
				t.ID, string(models.TaskStatusRunning)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	return deleted, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
