package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/watchfire-io/agentwatch/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTask(id, project string, started time.Time) *models.AgentTask {
	t := models.NewAgentTask(id, project, "", "database", "list tables", models.ModeInvestigate, "/logs/"+id+".log")
	t.StartedAt = started
	t.PID = models.IntPtr(4242)
	return t
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open() #%d error = %v", i, err)
		}
		version := dbVersion(t, s)
		if version != SchemaVersion() {
			t.Errorf("schema version = %d, want %d", version, SchemaVersion())
		}
		s.Close()
	}
}

func TestOpenMigratesV1Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	ctx := context.Background()

	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := raw.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := migrateV1(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(`INSERT INTO agent_tasks (id, project, agent, description, mode, status, log_path, started_at)
		VALUES ('old', 'p', 'a', 'd', 'investigate', 'completed', '/x.log', 1)`); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() on v1 database error = %v", err)
	}
	defer s.Close()

	if v := dbVersion(t, s); v != SchemaVersion() {
		t.Errorf("schema version after upgrade = %d, want %d", v, SchemaVersion())
	}
	task, err := s.GetTask(ctx, "old")
	if err != nil {
		t.Fatalf("GetTask(old) error = %v", err)
	}
	if task.SessionID != "" || task.UsageReported {
		t.Errorf("migrated task = %+v, want empty session and no usage", task)
	}
}

func dbVersion(t *testing.T, s *Store) int {
	t.Helper()
	provider, err := newMigrator(s.db)
	if err != nil {
		t.Fatal(err)
	}
	v, err := provider.GetDBVersion(context.Background())
	if err != nil {
		t.Fatalf("GetDBVersion() error = %v", err)
	}
	return int(v)
}

func TestOpenUnavailable(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened as a database file.
	_, err := Open(context.Background(), dir)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Open(dir) error = %v, want ErrUnavailable", err)
	}
}

func TestUpsertProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.UpsertProject(ctx, "shop", "/src/shop", t0); err != nil {
		t.Fatalf("UpsertProject() error = %v", err)
	}
	if err := s.UpsertProject(ctx, "shop", "/moved/shop", t0.Add(time.Hour)); err != nil {
		t.Fatalf("UpsertProject() refresh error = %v", err)
	}

	p, err := s.GetProject(ctx, "shop")
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != "/moved/shop" {
		t.Errorf("Path = %q, want /moved/shop", p.Path)
	}
	if !p.FirstSeen.Equal(t0) || !p.LastActivity.Equal(t0.Add(time.Hour)) {
		t.Errorf("FirstSeen/LastActivity = %v/%v", p.FirstSeen, p.LastActivity)
	}

	if _, err := s.GetProject(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProject(nope) error = %v, want ErrNotFound", err)
	}
}

func TestListProjectsActiveCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s.UpsertProject(ctx, "a", "/a", now)
	s.UpsertProject(ctx, "b", "/b", now.Add(time.Minute))
	s.InsertTask(ctx, newTask("t1", "a", now))
	s.InsertTask(ctx, newTask("t2", "a", now))
	s.InsertTask(ctx, newTask("t3", "b", now))
	s.UpdateTaskStatus(ctx, "t2", models.TaskStatusCompleted, models.IntPtr(0), now)

	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 || projects[0].Name != "b" {
		t.Fatalf("ListProjects() = %+v, want b first", projects)
	}
	counts := map[string]int{}
	for _, p := range projects {
		counts[p.Name] = p.ActiveTasks
	}
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Errorf("active counts = %v, want a:1 b:1", counts)
	}
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := &models.Session{ID: "s1", Project: "shop", StartedAt: time.Now().UTC()}

	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	got, err := s.GetSession(ctx, "s1")
	if err != nil || got.Status != models.SessionStatusActive || got.EndedAt != nil {
		t.Fatalf("GetSession() = %+v, %v", got, err)
	}

	if err := s.EndSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if err := s.EndSession(ctx, "s1", time.Now()); err != nil {
		t.Errorf("EndSession() twice error = %v", err)
	}
	got, _ = s.GetSession(ctx, "s1")
	if got.Status != models.SessionStatusEnded || got.EndedAt == nil {
		t.Errorf("ended session = %+v", got)
	}

	if err := s.EndSession(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("EndSession(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateTaskStatusOnlyFromRunning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InsertTask(ctx, newTask("t1", "p", time.Now().UTC()))

	done := time.Now().UTC()
	if err := s.UpdateTaskStatus(ctx, "t1", models.TaskStatusFailed, models.IntPtr(models.KilledExitCode), done); err != nil {
		t.Fatalf("UpdateTaskStatus() error = %v", err)
	}
	// A later exit must not overwrite the first terminal state.
	if err := s.UpdateTaskStatus(ctx, "t1", models.TaskStatusCompleted, models.IntPtr(0), done.Add(time.Second)); err != nil {
		t.Fatalf("UpdateTaskStatus() second error = %v", err)
	}

	task, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != models.TaskStatusFailed || task.ExitCode == nil || *task.ExitCode != -1 {
		t.Errorf("task = status %s exit %v, want failed -1", task.Status, task.ExitCode)
	}
	if task.PID != nil {
		t.Errorf("PID = %v, want nil after completion", *task.PID)
	}
	if task.CompletedAt == nil || task.CompletedAt.UnixMilli() != done.UnixMilli() {
		t.Errorf("CompletedAt = %v, want %v", task.CompletedAt, done)
	}

	if err := s.UpdateTaskStatus(ctx, "missing", models.TaskStatusFailed, nil, done); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTaskStatus(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateTaskStatus(ctx, "t1", models.TaskStatusRunning, nil, done); err == nil {
		t.Error("UpdateTaskStatus(running) error = nil")
	}
}

func TestUpdateTaskTokensMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InsertTask(ctx, newTask("t1", "p", time.Now().UTC()))

	tests := []struct {
		in, out         int64
		wantIn, wantOut int64
	}{
		{100, 20, 100, 20},
		{50, 30, 100, 30},
		{-1, -1, 100, 30},
		{200, 10, 200, 30},
	}
	var prevIn, prevOut int64
	for _, tt := range tests {
		if err := s.UpdateTaskTokens(ctx, "t1", tt.in, tt.out); err != nil {
			t.Fatalf("UpdateTaskTokens(%d, %d) error = %v", tt.in, tt.out, err)
		}
		task, _ := s.GetTask(ctx, "t1")
		if task.InputTokens != tt.wantIn || task.OutputTokens != tt.wantOut {
			t.Errorf("after (%d, %d) tokens = (%d, %d), want (%d, %d)",
				tt.in, tt.out, task.InputTokens, task.OutputTokens, tt.wantIn, tt.wantOut)
		}
		if task.InputTokens < prevIn || task.OutputTokens < prevOut {
			t.Error("token counters decreased")
		}
		if !task.UsageReported {
			t.Error("UsageReported = false after update")
		}
		prevIn, prevOut = task.InputTokens, task.OutputTokens
	}

	if err := s.UpdateTaskTokens(ctx, "missing", 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTaskTokens(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListTasksFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, p := range []string{"a", "a", "b", "a"} {
		task := newTask(fmt.Sprintf("t%d", i), p, base.Add(time.Duration(i)*time.Minute))
		task.SessionID = "s-" + p
		s.InsertTask(ctx, task)
	}
	s.UpdateTaskStatus(ctx, "t1", models.TaskStatusFailed, models.IntPtr(2), time.Now())

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"all newest first", TaskFilter{}, []string{"t3", "t2", "t1", "t0"}},
		{"project", TaskFilter{Project: "a"}, []string{"t3", "t1", "t0"}},
		{"status", TaskFilter{Status: models.TaskStatusRunning}, []string{"t3", "t2", "t0"}},
		{"project and status", TaskFilter{Project: "a", Status: models.TaskStatusFailed}, []string{"t1"}},
		{"session", TaskFilter{SessionID: "s-b"}, []string{"t2"}},
		{"limit", TaskFilter{Limit: 2}, []string{"t3", "t2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := s.ListTasks(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, task := range tasks {
				got = append(got, task.ID)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ListTasks(%+v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s.UpsertProject(ctx, "p", "/p", now)
	for _, id := range []string{"t1", "t2", "t3"} {
		s.InsertTask(ctx, newTask(id, "p", now))
	}
	s.UpdateTaskStatus(ctx, "t1", models.TaskStatusCompleted, models.IntPtr(0), now)
	s.UpdateTaskStatus(ctx, "t2", models.TaskStatusFailed, models.IntPtr(1), now)
	s.UpdateTaskTokens(ctx, "t1", 10, 5)
	s.UpdateTaskTokens(ctx, "t2", 7, 3)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := models.Stats{Projects: 1, Total: 3, Running: 1, Completed: 1, Failed: 1, InputTokens: 17, OutputTokens: 8}
	if *st != want {
		t.Errorf("Stats() = %+v, want %+v", *st, want)
	}
}

func TestCleanupKeepsRunning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-8 * 24 * time.Hour)

	s.InsertTask(ctx, newTask("old-done", "p", old))
	s.InsertTask(ctx, newTask("old-running", "p", old))
	s.InsertTask(ctx, newTask("new-done", "p", time.Now().UTC()))
	s.InsertTask(ctx, newTask("long-run", "p", old))
	s.UpdateTaskStatus(ctx, "old-done", models.TaskStatusCompleted, models.IntPtr(0), old)
	s.UpdateTaskStatus(ctx, "new-done", models.TaskStatusCompleted, models.IntPtr(0), time.Now())
	// Started before the horizon but finished an hour ago.
	s.UpdateTaskStatus(ctx, "long-run", models.TaskStatusFailed, models.IntPtr(1), time.Now().Add(-time.Hour))

	deleted, err := s.Cleanup(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != "old-done" {
		t.Errorf("Cleanup() deleted = %+v, want [old-done]", deleted)
	}

	if _, err := s.GetTask(ctx, "old-done"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old-done still present: %v", err)
	}
	for _, id := range []string{"old-running", "new-done", "long-run"} {
		if _, err := s.GetTask(ctx, id); err != nil {
			t.Errorf("GetTask(%s) after cleanup error = %v", id, err)
		}
	}
}

func TestConcurrentHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	handles := make([]*Store, 2)
	for i := range handles {
		s, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open() handle %d error = %v", i, err)
		}
		defer s.Close()
		handles[i] = s
	}

	const perHandle = 20
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range handles {
		project := fmt.Sprintf("proj-%d", i)
		g.Go(func() error {
			for n := 0; n < perHandle; n++ {
				if err := s.UpsertProject(gctx, project, "/"+project, time.Now()); err != nil {
					return err
				}
				if err := s.InsertTask(gctx, newTask(fmt.Sprintf("%s-%d", project, n), project, time.Now().UTC())); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent writes error = %v", err)
	}

	for i := range handles {
		tasks, err := handles[0].ListTasks(ctx, TaskFilter{Project: fmt.Sprintf("proj-%d", i)})
		if err != nil {
			t.Fatal(err)
		}
		if len(tasks) != perHandle {
			t.Errorf("proj-%d tasks = %d, want %d", i, len(tasks), perHandle)
		}
	}
}
