// Package client talks to a running dashboard: HTTP queries, websocket
// subscriptions and incremental transcript reassembly.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/daemon/server"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

var (
	// ErrNotRunning is returned by Discover when no dashboard is running.
	ErrNotRunning = errors.New("dashboard not running")

	// ErrNotFound is returned for a 404 response.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx response from the dashboard.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dashboard returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrNotFound for 404 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// TaskFilter narrows Tasks.
type TaskFilter struct {
	Project string
	Status  models.TaskStatus
	Limit   int
}

func (f TaskFilter) query() string {
	q := url.Values{}
	if f.Project != "" {
		q.Set("project", f.Project)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Client is a dashboard API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the dashboard at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Discover connects to the dashboard recorded in the marker files.
func Discover() (*Client, error) {
	running, info, err := config.IsDashboardRunning()
	if err != nil {
		return nil, fmt.Errorf("failed to check dashboard status: %w", err)
	}
	if !running {
		return nil, ErrNotRunning
	}
	return New(info.BaseURL()), nil
}

// BaseURL returns the dashboard base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dashboard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Health returns the dashboard's health report.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var h server.HealthResponse
	if err := c.get(ctx, "/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Projects lists every project with its running task count.
func (c *Client) Projects(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	if err := c.get(ctx, "/api/projects", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// Tasks lists tasks, newest first.
func (c *Client) Tasks(ctx context.Context, f TaskFilter) ([]*models.AgentTask, error) {
	var tasks []*models.AgentTask
	if err := c.get(ctx, "/api/tasks"+f.query(), &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Task returns one task.
func (c *Client) Task(ctx context.Context, id string) (*models.AgentTask, error) {
	var task models.AgentTask
	if err := c.get(ctx, "/api/tasks/"+url.PathEscape(id), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// LogDelta reads a task log from offset.
func (c *Client) LogDelta(ctx context.Context, id string, offset int64) (*config.LogDelta, error) {
	var d config.LogDelta
	path := fmt.Sprintf("/api/tasks/%s/log?offset=%d", url.PathEscape(id), offset)
	if err := c.get(ctx, path, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Events returns a task's parsed transcript, optionally filtered by kind.
func (c *Client) Events(ctx context.Context, id string, kind transcript.EventKind) ([]transcript.Event, error) {
	path := "/api/tasks/" + url.PathEscape(id) + "/events"
	if kind != "" {
		path += "?filter=" + url.QueryEscape(string(kind))
	}
	var resp server.EventsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Stats returns aggregate task counts and token totals.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	if err := c.get(ctx, "/api/stats", &st); err != nil {
		return nil, err
	}
	return &st, nil
}
