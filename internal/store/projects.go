package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// UpsertProject inserts a project or refreshes its path and last activity.
func (s *Store) UpsertProject(ctx context.Context, name, path string, at time.Time) error {
	ms := toMillis(at)
	_, err := s.exec(ctx, `
		INSERT INTO projects (name, path, first_seen, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			last_activity = MAX(projects.last_activity, excluded.last_activity)`,
		name, path, ms, ms)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", name, err)
	}
	return nil
}

const projectColumns = `p.name, p.path, p.first_seen, p.last_activity,
	(SELECT COUNT(*) FROM agent_tasks t WHERE t.project = p.name AND t.status = 'running')`

func scanProject(scan func(dest ...any) error) (*models.Project, error) {
	var (
		p                  models.Project
		firstSeen, lastAct int64
	)
	if err := scan(&p.Name, &p.Path, &firstSeen, &lastAct, &p.ActiveTasks); err != nil {
		return nil, err
	}
	p.FirstSeen = fromMillis(firstSeen)
	p.LastActivity = fromMillis(lastAct)
	return &p, nil
}

// ListProjects returns all projects, most recently active first, with
// their count of running tasks.
func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects p ORDER BY p.last_activity DESC, p.name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject returns one project by name.
func (s *Store) GetProject(ctx context.Context, name string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.name = ?`, name)
	p, err := scanProject(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, err)
	}
	return p, nil
}
