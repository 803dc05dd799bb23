// Package watcher handles file system watching for the dashboard daemon.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is how long a path must be quiet before its event fires.
const DebounceDelay = 100 * time.Millisecond

// subscriberBuffer is the per-subscriber channel capacity. Events are
// coarse invalidation signals, so a full subscriber just misses one.
const subscriberBuffer = 16

// EventType represents the type of file system event.
type EventType int

// Event types for file system changes.
const (
	EventLogCreated EventType = iota
	EventLogChanged
	EventAgentDirCreated
	EventStoreChanged
)

func (t EventType) String() string {
	switch t {
	case EventLogCreated:
		return "log_created"
	case EventLogChanged:
		return "log_changed"
	case EventAgentDirCreated:
		return "agent_dir_created"
	case EventStoreChanged:
		return "store_changed"
	}
	return "unknown"
}

// Event represents a file system change event.
type Event struct {
	Type  EventType
	Agent string // set for log and agent dir events
	Path  string
}

// Watcher watches the task log tree and the store database and fans
// debounced events out to subscribers.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logsDir   string
	storeDir  string
	storeBase string
	done      chan struct{}
	stopOnce  sync.Once

	debounce   map[string]*time.Timer
	debounceMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// New creates a watcher over logsDir and the directory holding storePath.
// An empty storePath skips store watching.
func New(logsDir, storePath string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		logsDir:   filepath.Clean(logsDir),
		done:      make(chan struct{}),
		debounce:  make(map[string]*time.Timer),
		subs:      make(map[int]chan Event),
	}
	if storePath != "" {
		w.storeDir = filepath.Dir(storePath)
		w.storeBase = filepath.Base(storePath)
	}
	return w, nil
}

// Start adds the watches and begins processing events.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.logsDir, 0o755); err != nil {
		return err
	}
	if err := w.fsWatcher.Add(w.logsDir); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.logsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchAgentDir(filepath.Join(w.logsDir, e.Name()))
		}
	}

	if w.storeDir != "" && w.storeDir != w.logsDir {
		if err := w.fsWatcher.Add(w.storeDir); err != nil {
			log.Printf("[watcher] Warning: failed to watch store dir: %v", err)
		}
	}

	log.Printf("[watcher] Watching logs %s (store: %s)", w.logsDir, w.storeDir)
	go w.processEvents()
	return nil
}

// Stop stops the watcher and closes every subscriber channel.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsWatcher.Close()

		w.debounceMu.Lock()
		for path, timer := range w.debounce {
			timer.Stop()
			delete(w.debounce, path)
		}
		w.debounceMu.Unlock()

		w.subMu.Lock()
		for id, ch := range w.subs {
			close(ch)
			delete(w.subs, id)
		}
		w.subMu.Unlock()
	})
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; it is safe to call more than once.
func (w *Watcher) Subscribe() (<-chan Event, func()) {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	select {
	case <-w.done:
		close(ch)
		return ch, func() {}
	default:
	}

	id := w.nextID
	w.nextID++
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { w.unsubscribe(id) })
	}
}

func (w *Watcher) unsubscribe(id int) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	if ch, ok := w.subs[id]; ok {
		close(ch)
		delete(w.subs, id)
	}
}

// SubscriberCount returns the number of live subscribers.
func (w *Watcher) SubscriberCount() int {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	return len(w.subs)
}

func (w *Watcher) broadcast(ev Event) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (w *Watcher) watchAgentDir(dir string) {
	if err := w.fsWatcher.Add(dir); err != nil {
		log.Printf("[watcher] Warning: failed to watch %s: %v", dir, err)
	}
}

// processEvents processes file system events.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Rename covers atomic writes landing on the target path.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	// New agent directories are watched right away so their first log
	// file is not missed while the debounce timer is pending.
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == w.logsDir {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watchAgentDir(event.Name)
		}
	}

	w.debounceEvent(event.Name, func() {
		w.processFileChange(event.Name, event.Op)
	})
}

// debounceEvent debounces events for the same path.
func (w *Watcher) debounceEvent(path string, fn func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}

	w.debounce[path] = time.AfterFunc(DebounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounce, path)
		w.debounceMu.Unlock()
		fn()
	})
}

// processFileChange classifies a debounced change and broadcasts it.
func (w *Watcher) processFileChange(path string, op fsnotify.Op) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	switch {
	case w.storeDir != "" && dir == w.storeDir && strings.HasPrefix(name, w.storeBase):
		// db, -wal and -shm files
		w.broadcast(Event{Type: EventStoreChanged, Path: path})

	case dir == w.logsDir:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.broadcast(Event{Type: EventAgentDirCreated, Agent: name, Path: path})
		}

	case filepath.Dir(dir) == w.logsDir && strings.HasSuffix(name, ".log"):
		evType := EventLogChanged
		if op&fsnotify.Create != 0 {
			evType = EventLogCreated
		}
		w.broadcast(Event{Type: evType, Agent: filepath.Base(dir), Path: path})
	}
}
