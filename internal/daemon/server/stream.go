package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/daemon/watcher"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/store"
)

// acceptOptions restricts websocket origins to loopback pages.
var acceptOptions = &websocket.AcceptOptions{
	OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
}

// stream holds the per-connection resources of one websocket push stream.
// release must run when the connection ends, however it ends.
type stream struct {
	conn    *websocket.Conn
	ctx     context.Context
	events  <-chan watcher.Event
	ticker  *time.Ticker
	release func()
}

func (s *Server) openStream(w http.ResponseWriter, r *http.Request) (*stream, error) {
	conn, err := websocket.Accept(w, r, acceptOptions)
	if err != nil {
		return nil, err
	}

	// CloseRead consumes control frames and cancels ctx on disconnect.
	ctx := conn.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	stopOnShutdown := context.AfterFunc(s.streams, cancel)

	events, unsubscribe := s.watcher.Subscribe()
	ticker := time.NewTicker(s.opts.Keepalive)

	return &stream{
		conn:   conn,
		ctx:    ctx,
		events: events,
		ticker: ticker,
		release: func() {
			ticker.Stop()
			unsubscribe()
			stopOnShutdown()
			cancel()
			_ = conn.CloseNow()
		},
	}, nil
}

func (st *stream) send(frame *models.StreamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(st.ctx, writeTimeout)
	defer cancel()
	return st.conn.Write(ctx, websocket.MessageText, data)
}

func (st *stream) keepalive() error {
	return st.send(&models.StreamFrame{Type: models.FrameKeepalive})
}

// handleAgentsStream pushes the full task list on connect and again after
// every watcher event. Any change in the log tree or store invalidates the
// list; clients tolerate redundant frames.
func (s *Server) handleAgentsStream(w http.ResponseWriter, r *http.Request) {
	f, err := taskFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.openStream(w, r)
	if err != nil {
		log.Printf("[dashboard] websocket accept failed: %v", err)
		return
	}
	defer st.release()

	sendList := func() error {
		tasks, err := s.store.ListTasks(st.ctx, f)
		if err != nil {
			if st.ctx.Err() == nil {
				log.Printf("[dashboard] agents stream: %v", err)
				_ = st.send(&models.StreamFrame{Type: models.FrameError, Error: store.ErrUnavailable.Error()})
			}
			return err
		}
		if tasks == nil {
			tasks = []*models.AgentTask{}
		}
		return st.send(&models.StreamFrame{Type: models.FrameAgents, Tasks: tasks})
	}

	if err := sendList(); err != nil {
		return
	}
	for {
		select {
		case <-st.ctx.Done():
			return
		case _, ok := <-st.events:
			if !ok {
				_ = st.conn.Close(websocket.StatusGoingAway, "dashboard shutting down")
				return
			}
			if err := sendList(); err != nil {
				return
			}
		case <-st.ticker.C:
			if err := st.keepalive(); err != nil {
				return
			}
		}
	}
}

// logCursor tracks how much of one task log a connection has been sent.
type logCursor struct {
	taskID string
	path   string
	sent   int64
}

// snapshot sends the whole log from offset 0 and resets the cursor.
func (c *logCursor) snapshot(st *stream) error {
	d, err := config.ReadTaskLog(c.path, 0)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		d = nil
	}
	frame := &models.StreamFrame{Type: models.FrameSnapshot, TaskID: c.taskID}
	if d != nil {
		frame.Content = d.Content
		frame.Size = d.Size
	}
	c.sent = frame.Size
	return st.send(frame)
}

// advance sends bytes appended since the last frame. A log shorter than
// the cursor was truncated or replaced and gets a fresh snapshot.
func (c *logCursor) advance(st *stream) error {
	size := logSize(c.path)
	if size < 0 {
		return nil
	}
	if size < c.sent {
		return c.snapshot(st)
	}
	if size == c.sent {
		return nil
	}

	d, err := config.ReadTaskLog(c.path, c.sent)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if d.Content == "" {
		return nil
	}
	c.sent = d.Size
	return st.send(&models.StreamFrame{
		Type:    models.FrameDelta,
		TaskID:  c.taskID,
		Offset:  d.Offset,
		Content: d.Content,
		Size:    d.Size,
	})
}

// handleLogStream sends a snapshot of one task's log and then only the
// newly appended bytes, tracked by a per-connection cursor.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "task not found")
		return
	}

	st, err := s.openStream(w, r)
	if err != nil {
		log.Printf("[dashboard] websocket accept failed: %v", err)
		return
	}
	defer st.release()

	cur := &logCursor{taskID: task.ID, path: task.LogPath}
	if err := cur.snapshot(st); err != nil {
		return
	}

	for {
		select {
		case <-st.ctx.Done():
			return
		case ev, ok := <-st.events:
			if !ok {
				_ = st.conn.Close(websocket.StatusGoingAway, "dashboard shutting down")
				return
			}
			if ev.Path != task.LogPath {
				continue
			}
			if err := cur.advance(st); err != nil {
				return
			}
		case <-st.ticker.C:
			// A dropped watcher event is caught up here.
			if err := cur.advance(st); err != nil {
				return
			}
			if err := st.keepalive(); err != nil {
				return
			}
		}
	}
}
