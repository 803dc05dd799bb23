package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
)

// migrations are additive schema steps run by goose. Each step checks for
// what it creates before creating it, so re-running one is harmless.
var migrations = []*goose.Migration{
	goose.NewGoMigration(1, &goose.GoFunc{RunTx: migrateV1}, nil),
	goose.NewGoMigration(2, &goose.GoFunc{RunTx: migrateV2}, nil),
	goose.NewGoMigration(3, &goose.GoFunc{RunTx: migrateV3}, nil),
}

// SchemaVersion is the latest schema version this build knows.
func SchemaVersion() int {
	return int(migrations[len(migrations)-1].Version)
}

func newMigrator(db *sql.DB) (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectSQLite3, db, nil,
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(migrations...),
	)
}

// migrate applies pending migrations. Two processes opening a fresh
// database can race on creating the goose version table; the loser
// retries and finds the work done.
func (s *Store) migrate(ctx context.Context) error {
	provider, err := newMigrator(s.db)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	err = retryMigration(ctx, 5, func() error {
		_, err := provider.Up(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > int64(SchemaVersion()) {
		return fmt.Errorf("db schema version %d is newer than supported %d", current, SchemaVersion())
	}
	return nil
}

func retryMigration(ctx context.Context, maxRetries int, f func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil || ctx.Err() != nil {
			return err
		}
		if !isSQLiteBusy(err) && !strings.Contains(err.Error(), "already exists") {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			name          TEXT PRIMARY KEY,
			path          TEXT NOT NULL,
			first_seen    INTEGER NOT NULL,
			last_activity INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_tasks (
			id            TEXT PRIMARY KEY,
			project       TEXT NOT NULL,
			agent         TEXT NOT NULL,
			description   TEXT NOT NULL,
			mode          TEXT NOT NULL,
			status        TEXT NOT NULL,
			pid           INTEGER,
			log_path      TEXT NOT NULL,
			started_at    INTEGER NOT NULL,
			completed_at  INTEGER,
			exit_code     INTEGER,
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_tasks_project ON agent_tasks(project)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_tasks_status ON agent_tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_tasks_started ON agent_tasks(started_at)`,
	}
	return execAll(ctx, tx, stmts)
}

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	if err := execAll(ctx, tx, []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			project    TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at   INTEGER,
			status     TEXT NOT NULL DEFAULT 'active'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project)`,
	}); err != nil {
		return err
	}
	if err := addColumn(ctx, tx, "agent_tasks", "session_id", "TEXT"); err != nil {
		return err
	}
	return execAll(ctx, tx, []string{
		`CREATE INDEX IF NOT EXISTS idx_agent_tasks_session ON agent_tasks(session_id)`,
	})
}

func migrateV3(ctx context.Context, tx *sql.Tx) error {
	return addColumn(ctx, tx, "agent_tasks", "usage_reported", "INTEGER NOT NULL DEFAULT 0")
}

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// addColumn adds a column unless it already exists.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	exists, err := columnExists(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
