package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// CreateSession records a new active session.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.exec(ctx,
		`INSERT INTO sessions (id, project, started_at, status) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Project, toMillis(sess.StartedAt), string(models.SessionStatusActive))
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// EndSession marks an active session ended. Ending an ended session is a no-op.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
		string(models.SessionStatusEnded), toMillis(at), id, string(models.SessionStatusActive))
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var (
		sess    models.Session
		started int64
		ended   sql.NullInt64
		status  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project, started_at, ended_at, status FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Project, &started, &ended, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	sess.StartedAt = fromMillis(started)
	sess.EndedAt = timePtr(ended)
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}
