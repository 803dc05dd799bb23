package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T) (w *Watcher, logsDir, storePath string) {
	t.Helper()
	root := t.TempDir()
	logsDir = filepath.Join(root, "logs")
	storePath = filepath.Join(root, "agentwatch.db")

	w, err := New(logsDir, storePath)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, logsDir, storePath
}

func waitFor(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestLogEvents(t *testing.T) {
	w, logsDir, _ := startWatcher(t)
	ch, cancel := w.Subscribe()
	defer cancel()

	agentDir := filepath.Join(logsDir, "database")
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, ch, EventAgentDirCreated)
	if ev.Agent != "database" {
		t.Errorf("agent dir event agent = %q, want database", ev.Agent)
	}

	logPath := filepath.Join(agentDir, "20260101-120000-abc.log")
	if err := os.WriteFile(logPath, []byte("---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev = waitFor(t, ch, EventLogCreated)
	if ev.Path != logPath || ev.Agent != "database" {
		t.Errorf("log event = %+v, want path %s agent database", ev, logPath)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"type":"result","result":"ok"}` + "\n")
	_ = f.Close()
	waitFor(t, ch, EventLogChanged)
}

func TestStoreEvents(t *testing.T) {
	w, _, storePath := startWatcher(t)
	ch, cancel := w.Subscribe()
	defer cancel()

	if err := os.WriteFile(storePath+"-wal", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, ch, EventStoreChanged)
	if ev.Path != storePath+"-wal" {
		t.Errorf("store event path = %q, want %q", ev.Path, storePath+"-wal")
	}
}

func TestDebounceCoalesces(t *testing.T) {
	w, logsDir, _ := startWatcher(t)
	agentDir := filepath.Join(logsDir, "reviewer")
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(agentDir, "x.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * DebounceDelay)

	ch, cancel := w.Subscribe()
	defer cancel()

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		_, _ = f.WriteString("line\n")
	}
	_ = f.Close()

	waitFor(t, ch, EventLogChanged)
	select {
	case ev := <-ch:
		if ev.Path == logPath {
			t.Errorf("got second event %+v for burst of writes, want one", ev)
		}
	case <-time.After(3 * DebounceDelay):
	}
}

func TestSubscribeRelease(t *testing.T) {
	w, _, _ := startWatcher(t)

	cancels := make([]func(), 0, 20)
	for i := 0; i < 20; i++ {
		_, cancel := w.Subscribe()
		cancels = append(cancels, cancel)
	}
	if got := w.SubscriberCount(); got != 20 {
		t.Fatalf("SubscriberCount() = %d, want 20", got)
	}
	for _, cancel := range cancels {
		cancel()
		cancel()
	}
	if got := w.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() after cancel = %d, want 0", got)
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	w, _, _ := startWatcher(t)
	ch, cancel := w.Subscribe()
	w.Stop()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open after Stop")
	}
	late, _ := w.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Stop returned an open channel")
	}
	if got := w.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}
}
