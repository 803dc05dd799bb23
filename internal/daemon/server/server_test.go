package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/daemon/watcher"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/store"
)

const resultLine = `{"type":"result","subtype":"success","result":"Found 3 tables","duration_ms":1200,"total_cost_usd":0.01,"num_turns":2,"usage":{"input_tokens":120,"output_tokens":30}}`

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	store   *store.Store
	watcher *watcher.Watcher
	logsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	logsDir := filepath.Join(root, "logs")
	dbPath := filepath.Join(root, "agentwatch.db")

	st, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	w, err := watcher.New(logsDir, dbPath)
	if err != nil {
		t.Fatalf("watcher.New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("watcher.Start() error: %v", err)
	}
	t.Cleanup(w.Stop)

	srv, err := New(Options{Store: st, Watcher: w, Keepalive: time.Hour, Version: "test"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})

	return &testEnv{srv: srv, ts: ts, store: st, watcher: w, logsDir: logsDir}
}

// addTask inserts a task row and writes its log with a header and the
// given body lines.
func (e *testEnv) addTask(t *testing.T, id, project string, status models.TaskStatus, started time.Time, lines ...string) *models.AgentTask {
	t.Helper()
	path := config.TaskLogPath(e.logsDir, "database", id, started)
	f, err := config.CreateTaskLog(path, &models.LogHeader{
		Agent: "database", TaskID: id, Mode: string(models.ModeInvestigate),
		Project: project, Description: "list tables", StartedAt: started.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lines {
		fmt.Fprintln(f, l)
	}
	f.Close()

	task := models.NewAgentTask(id, project, "", "database", "list tables", models.ModeInvestigate, path)
	task.StartedAt = started
	ctx := context.Background()
	if err := e.store.UpsertProject(ctx, project, "/src/"+project, started); err != nil {
		t.Fatal(err)
	}
	if err := e.store.InsertTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if status != models.TaskStatusRunning {
		if err := e.store.UpdateTaskStatus(ctx, id, status, models.IntPtr(0), started.Add(time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	return task
}

func (e *testEnv) getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var h HealthResponse
	if code := env.getJSON(t, "/api/health", &h); code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", code)
	}
	if h.Status != "ok" || h.Version != "test" || h.SchemaVersion != store.SchemaVersion() {
		t.Errorf("health = %+v", h)
	}
}

func TestQueryRoutes(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.addTask(t, "t1", "alpha", models.TaskStatusRunning, now.Add(-2*time.Minute))
	env.addTask(t, "t2", "alpha", models.TaskStatusCompleted, now.Add(-time.Minute), resultLine)
	env.addTask(t, "t3", "beta", models.TaskStatusFailed, now)

	var projects []*models.Project
	if code := env.getJSON(t, "/api/projects", &projects); code != http.StatusOK || len(projects) != 2 {
		t.Fatalf("projects = %d (%d), want 2", len(projects), code)
	}

	tests := []struct {
		query string
		want  int
		code  int
	}{
		{"", 3, http.StatusOK},
		{"?project=alpha", 2, http.StatusOK},
		{"?status=running", 1, http.StatusOK},
		{"?project=alpha&status=completed", 1, http.StatusOK},
		{"?limit=1", 1, http.StatusOK},
		{"?status=bogus", 0, http.StatusBadRequest},
		{"?limit=-1", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var tasks []*models.AgentTask
			code := env.getJSON(t, "/api/tasks"+tt.query, &tasks)
			if code != tt.code {
				t.Fatalf("GET /api/tasks%s = %d, want %d", tt.query, code, tt.code)
			}
			if len(tasks) != tt.want {
				t.Errorf("GET /api/tasks%s returned %d tasks, want %d", tt.query, len(tasks), tt.want)
			}
		})
	}

	var task models.AgentTask
	if code := env.getJSON(t, "/api/tasks/t2", &task); code != http.StatusOK || task.Status != models.TaskStatusCompleted {
		t.Errorf("GET /api/tasks/t2 = %d %+v", code, task)
	}
	if code := env.getJSON(t, "/api/tasks/nope", nil); code != http.StatusNotFound {
		t.Errorf("GET /api/tasks/nope = %d, want 404", code)
	}

	var stats models.Stats
	if code := env.getJSON(t, "/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("GET /api/stats = %d", code)
	}
	if stats.Total != 3 || stats.Running != 1 || stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTaskEvents(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "t1", "alpha", models.TaskStatusCompleted, time.Now().UTC(),
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"sqlite3 .tables"}}]}}`,
		resultLine)

	var resp EventsResponse
	if code := env.getJSON(t, "/api/tasks/t1/events?filter=result", &resp); code != http.StatusOK {
		t.Fatalf("events status = %d", code)
	}
	if resp.Total != 1 || resp.Events[0].Content != "Found 3 tables" {
		t.Errorf("events = %+v, want one result event", resp)
	}
	if code := env.getJSON(t, "/api/tasks/t1/events?filter=nope", nil); code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", code)
	}
}

func TestTaskLogDelta(t *testing.T) {
	env := newTestEnv(t)
	task := env.addTask(t, "t1", "alpha", models.TaskStatusRunning, time.Now().UTC(), resultLine)
	full, err := os.ReadFile(task.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	size := int64(len(full))

	var d config.LogDelta
	if code := env.getJSON(t, "/api/tasks/t1/log?offset=0", &d); code != http.StatusOK {
		t.Fatalf("log status = %d", code)
	}
	if d.Content != string(full) || d.Size != size {
		t.Errorf("offset 0: size %d content %q, want whole file", d.Size, d.Content)
	}

	for i := 0; i < 2; i++ {
		var again config.LogDelta
		env.getJSON(t, fmt.Sprintf("/api/tasks/t1/log?offset=%d", d.Size), &again)
		if again.Content != "" || again.Size != size {
			t.Errorf("offset=size read #%d = %+v, want empty with size %d", i, again, size)
		}
	}

	var past config.LogDelta
	env.getJSON(t, fmt.Sprintf("/api/tasks/t1/log?offset=%d", size+100), &past)
	if past.Content != "" || past.Size != size {
		t.Errorf("offset past end = %+v, want empty with size %d", past, size)
	}
	if code := env.getJSON(t, "/api/tasks/t1/log?offset=abc", nil); code != http.StatusBadRequest {
		t.Errorf("bad offset status = %d, want 400", code)
	}
}

func TestRetention(t *testing.T) {
	env := newTestEnv(t)
	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	done := env.addTask(t, "old-done", "alpha", models.TaskStatusCompleted, old, resultLine)
	running := env.addTask(t, "old-running", "alpha", models.TaskStatusRunning, old)
	env.addTask(t, "fresh", "alpha", models.TaskStatusCompleted, time.Now().UTC())

	report, err := RunRetention(context.Background(), env.store, 7*24*time.Hour, true)
	if err != nil {
		t.Fatalf("RunRetention() error: %v", err)
	}
	if report.Deleted != 1 || report.Archived != 1 {
		t.Errorf("report = %+v, want 1 deleted and archived", report)
	}

	ctx := context.Background()
	if _, err := env.store.GetTask(ctx, "old-done"); err == nil {
		t.Error("old completed task still present after retention")
	}
	if _, err := env.store.GetTask(ctx, running.ID); err != nil {
		t.Errorf("old running task swept: %v", err)
	}
	if _, err := env.store.GetTask(ctx, "fresh"); err != nil {
		t.Errorf("fresh task swept: %v", err)
	}
	if _, err := os.Stat(done.LogPath); !os.IsNotExist(err) {
		t.Errorf("original log still present: %v", err)
	}
	content, err := config.ReadArchivedLog(done.LogPath + ".xz")
	if err != nil || !strings.Contains(content, "Found 3 tables") {
		t.Errorf("archive content = %q, %v", content, err)
	}
}

func TestArchivedLogDelta(t *testing.T) {
	env := newTestEnv(t)
	task := env.addTask(t, "t1", "alpha", models.TaskStatusCompleted, time.Now().UTC(), resultLine)
	full, err := os.ReadFile(task.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := config.ArchiveLog(task.LogPath); err != nil {
		t.Fatal(err)
	}

	var d config.LogDelta
	if code := env.getJSON(t, "/api/tasks/t1/log", &d); code != http.StatusOK {
		t.Fatalf("archived log status = %d", code)
	}
	if d.Content != string(full) {
		t.Errorf("archived log content = %q, want %q", d.Content, full)
	}
	var resp EventsResponse
	env.getJSON(t, "/api/tasks/t1/events?filter=result", &resp)
	if resp.Total != 1 {
		t.Errorf("archived events total = %d, want 1", resp.Total)
	}
}

func dial(t *testing.T, env *testEnv, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *models.StreamFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f models.StreamFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return &f
}

func waitSubscribers(t *testing.T, w *watcher.Watcher, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for w.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("SubscriberCount() = %d, want %d", w.SubscriberCount(), want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestLogStream(t *testing.T) {
	env := newTestEnv(t)
	task := env.addTask(t, "t1", "alpha", models.TaskStatusRunning, time.Now().UTC())

	conn := dial(t, env, "/api/stream/tasks/t1/log")
	defer conn.CloseNow()

	snap := readFrame(t, conn)
	if snap.Type != models.FrameSnapshot || snap.Offset != 0 || !strings.Contains(snap.Content, "task_id: t1") {
		t.Fatalf("first frame = %+v, want header snapshot", snap)
	}

	f, err := os.OpenFile(task.LogPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintln(f, resultLine)
	f.Close()

	delta := readFrame(t, conn)
	if delta.Type != models.FrameDelta {
		t.Fatalf("second frame type = %s, want delta", delta.Type)
	}
	if delta.Offset != snap.Size || delta.Content != resultLine+"\n" {
		t.Errorf("delta = %+v, want offset %d with the result line", delta, snap.Size)
	}

	// Truncation resets the cursor with a fresh snapshot.
	if err := os.WriteFile(task.LogPath, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	reset := readFrame(t, conn)
	if reset.Type != models.FrameSnapshot || reset.Content != "x\n" || reset.Size != 2 {
		t.Errorf("after truncation frame = %+v, want snapshot of new content", reset)
	}
}

func TestLogStreamUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	if code := env.getJSON(t, "/api/stream/tasks/nope/log", nil); code != http.StatusNotFound {
		t.Errorf("stream for unknown task = %d, want 404", code)
	}
}

func TestAgentsStream(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "t1", "alpha", models.TaskStatusRunning, time.Now().UTC())

	conn := dial(t, env, "/api/stream/agents")
	defer conn.CloseNow()

	first := readFrame(t, conn)
	if first.Type != models.FrameAgents || len(first.Tasks) != 1 {
		t.Fatalf("first frame = %+v, want agents list of 1", first)
	}

	env.addTask(t, "t2", "alpha", models.TaskStatusRunning, time.Now().UTC())
	deadline := time.Now().Add(5 * time.Second)
	for {
		f := readFrame(t, conn)
		if f.Type == models.FrameAgents && len(f.Tasks) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("never received updated agents list")
		}
	}
}

func TestStreamKeepalive(t *testing.T) {
	env := newTestEnv(t)
	env.srv.opts.Keepalive = 50 * time.Millisecond
	env.addTask(t, "t1", "alpha", models.TaskStatusRunning, time.Now().UTC())

	conn := dial(t, env, "/api/stream/tasks/t1/log")
	defer conn.CloseNow()
	readFrame(t, conn)
	if f := readFrame(t, conn); f.Type != models.FrameKeepalive {
		t.Errorf("frame = %s, want keepalive", f.Type)
	}
}

func TestStreamsReleaseSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "t1", "alpha", models.TaskStatusRunning, time.Now().UTC())

	for i := 0; i < 10; i++ {
		for _, path := range []string{"/api/stream/agents", "/api/stream/tasks/t1/log"} {
			conn := dial(t, env, path)
			readFrame(t, conn)
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
	}
	waitSubscribers(t, env.watcher, 0)
}

func TestShutdownEndsStreams(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "t1", "alpha", models.TaskStatusRunning, time.Now().UTC())

	conn := dial(t, env, "/api/stream/agents")
	defer conn.CloseNow()
	readFrame(t, conn)
	waitSubscribers(t, env.watcher, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	waitSubscribers(t, env.watcher, 0)
}

func TestListenInRange(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := busy.Addr().(*net.TCPAddr).Port

	if _, err := listenInRange("127.0.0.1", port, port); err == nil {
		t.Fatal("listenInRange() on a busy port succeeded")
	}
	busy.Close()

	ln, err := listenInRange("127.0.0.1", port, port)
	if err != nil {
		t.Fatalf("listenInRange() after release error: %v", err)
	}
	defer ln.Close()
	if got := ln.Addr().(*net.TCPAddr).Port; got != port {
		t.Errorf("bound port = %d, want %d", got, port)
	}
}
