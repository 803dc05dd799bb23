package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/store"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	SchemaVersion int       `json:"schema_version"`
	Subscribers   int       `json:"subscribers"`
}

// EventsResponse is the body of GET /api/tasks/{id}/events.
type EventsResponse struct {
	TaskID string             `json:"task_id"`
	Events []transcript.Event `json:"events"`
	Total  int                `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[dashboard] failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeStoreError maps store errors to status codes. The dashboard has no
// fallback when the store is unreachable.
func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	log.Printf("[dashboard] store error: %v", err)
	writeError(w, http.StatusServiceUnavailable, store.ErrUnavailable.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.opts.Version,
		PID:           os.Getpid(),
		StartedAt:     s.startedAt,
		SchemaVersion: store.SchemaVersion(),
		Subscribers:   s.watcher.SubscriberCount(),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		log.Printf("[dashboard] health: %v", err)
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// taskFilter parses the project, status and limit query parameters.
func taskFilter(r *http.Request) (store.TaskFilter, error) {
	q := r.URL.Query()
	f := store.TaskFilter{
		Project:   q.Get("project"),
		SessionID: q.Get("session"),
	}
	if v := q.Get("status"); v != "" {
		status, err := models.ParseTaskStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f, err := taskFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), f)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if tasks == nil {
		tasks = []*models.AgentTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskLog(w http.ResponseWriter, r *http.Request) {
	var offset int64
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "task not found")
		return
	}
	delta, err := config.ReadTaskLog(task.LogPath, offset)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "log not found")
			return
		}
		log.Printf("[dashboard] read log %s: %v", task.LogPath, err)
		writeError(w, http.StatusInternalServerError, "failed to read log")
		return
	}
	writeJSON(w, http.StatusOK, delta)
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	var kind transcript.EventKind
	if v := r.URL.Query().Get("filter"); v != "" {
		k, err := transcript.ParseKind(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}

	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "task not found")
		return
	}
	events, err := s.taskEvents(task.LogPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "log not found")
			return
		}
		log.Printf("[dashboard] parse log %s: %v", task.LogPath, err)
		writeError(w, http.StatusInternalServerError, "failed to read log")
		return
	}
	events = transcript.Filter(events, kind)
	if events == nil {
		events = []transcript.Event{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{TaskID: task.ID, Events: events, Total: len(events)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
