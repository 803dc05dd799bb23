// Package agent supervises agent subprocesses: spawning, exit handling,
// status queries, termination and transcript activity.
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

const (
	// DefaultPollInterval is how often a blocking status query re-checks.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultStatusTimeout bounds a blocking status query.
	DefaultStatusTimeout = 300 * time.Second

	storeWriteTimeout = 10 * time.Second
)

// Store is the subset of the shared store the supervisor mirrors into.
type Store interface {
	UpsertProject(ctx context.Context, name, path string, at time.Time) error
	CreateSession(ctx context.Context, sess *models.Session) error
	EndSession(ctx context.Context, id string, at time.Time) error
	InsertTask(ctx context.Context, t *models.AgentTask) error
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, exitCode *int, completedAt time.Time) error
	UpdateTaskTokens(ctx context.Context, id string, input, output int64) error
}

// Options configures a Manager.
type Options struct {
	ProjectPath string
	RolesDir    string
	LogsDir     string

	// AgentPath is the agent executable. Empty resolves via ResolveAgentPath.
	AgentPath string

	// Store may be nil; the supervisor then runs without mirroring.
	Store Store

	PollInterval time.Duration
}

// StatusOptions controls GetStatus.
type StatusOptions struct {
	Block   bool
	Timeout time.Duration
}

// StatusResult is the answer to GetStatus. TimedOut means the blocking
// wait ended before the task finished; the task is still running.
type StatusResult struct {
	Task     *models.AgentTask `json:"task"`
	TimedOut bool              `json:"timed_out,omitempty"`
}

type taskEntry struct {
	task   *models.AgentTask
	proc   *process
	exited bool
}

// Manager owns the task table of one supervisor instance.
type Manager struct {
	opts        Options
	projectName string
	session     *models.Session
	cache       *transcript.Cache

	mu    sync.RWMutex
	tasks map[string]*taskEntry

	events   chan event
	quit     chan struct{}
	loopDone chan struct{}
	closeMu  sync.Once
}

// NewManager creates a supervisor for a project, records its session and
// starts the event loop.
func NewManager(opts Options) (*Manager, error) {
	if opts.ProjectPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		opts.ProjectPath = wd
	}
	abs, err := filepath.Abs(opts.ProjectPath)
	if err != nil {
		return nil, err
	}
	opts.ProjectPath = abs
	if opts.RolesDir == "" {
		opts.RolesDir = config.ProjectRolesDir(opts.ProjectPath)
	}
	if opts.LogsDir == "" {
		dir, err := config.GlobalLogsDir()
		if err != nil {
			return nil, err
		}
		opts.LogsDir = dir
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	cache, err := transcript.NewCache(0)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		opts:        opts,
		projectName: filepath.Base(opts.ProjectPath),
		cache:       cache,
		tasks:       make(map[string]*taskEntry),
		events:      make(chan event, 64),
		quit:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	m.session = &models.Session{
		ID:        uuid.NewString(),
		Project:   m.projectName,
		StartedAt: time.Now().UTC(),
		Status:    models.SessionStatusActive,
	}
	m.mirror("create session", func(ctx context.Context, s Store) error {
		return s.CreateSession(ctx, m.session)
	})

	go m.run()
	return m, nil
}

// ProjectName returns the project the supervisor spawns for.
func (m *Manager) ProjectName() string {
	return m.projectName
}

// SessionID returns the id of this supervisor's session.
func (m *Manager) SessionID() string {
	return m.session.ID
}

// Roles lists the available agent roles.
func (m *Manager) Roles() ([]string, error) {
	return ListRoles(m.opts.RolesDir)
}

// Close ends the session and stops the event loop. Running agents are
// detached and keep running.
func (m *Manager) Close() error {
	m.closeMu.Do(func() {
		close(m.quit)
		<-m.loopDone
		m.mirror("end session", func(ctx context.Context, s Store) error {
			return s.EndSession(ctx, m.session.ID, time.Now().UTC())
		})
		m.cache.Close()
	})
	return nil
}

func (m *Manager) closed() bool {
	select {
	case <-m.quit:
		return true
	default:
		return false
	}
}

// Spawn starts an agent for a task. On a start failure the failed record
// is returned together with an error wrapping ErrSpawnFailure.
func (m *Manager) Spawn(ctx context.Context, agentName, description string, mode models.Mode) (*models.AgentTask, error) {
	if m.closed() {
		return nil, errClosed
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidMode, mode, models.ModeInvestigate, models.ModeImplement)
	}
	role, err := LoadRole(m.opts.RolesDir, agentName)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	logPath := config.TaskLogPath(m.opts.LogsDir, agentName, id, now)
	task := models.NewAgentTask(id, m.projectName, m.session.ID, agentName, description, mode, logPath)
	task.StartedAt = now

	logFile, err := config.CreateTaskLog(logPath, &models.LogHeader{
		Agent:       agentName,
		TaskID:      id,
		Mode:        string(mode),
		Project:     m.projectName,
		Description: description,
		StartedAt:   now.Format(time.RFC3339),
	})
	if err != nil {
		return m.spawnFailed(task, err)
	}

	path := m.opts.AgentPath
	if path == "" {
		path, err = ResolveAgentPath("")
		if err != nil {
			logFile.Close()
			return m.spawnFailed(task, err)
		}
	}

	proc, err := startProcess(path, buildArgs(buildPayload(role, mode, description), mode), m.opts.ProjectPath, logFile)
	logFile.Close()
	if err != nil {
		return m.spawnFailed(task, err)
	}

	task.PID = models.IntPtr(proc.pid)
	m.mu.Lock()
	m.tasks[id] = &taskEntry{task: task, proc: proc}
	snapshot := task.Clone()
	m.mu.Unlock()

	m.mirrorSpawn(snapshot)
	log.Printf("[supervisor] spawned %s task %s (mode=%s pid=%d)", agentName, id, mode, proc.pid)

	// Registered after the store insert so the exit update follows it.
	go m.waitExit(id, proc)
	return snapshot, nil
}

func (m *Manager) spawnFailed(task *models.AgentTask, cause error) (*models.AgentTask, error) {
	task.Finish(models.TaskStatusFailed, nil)
	if err := config.AppendLogError(task.LogPath, cause); err != nil {
		log.Printf("[supervisor] failed to append error block for %s: %v", task.ID, err)
	}

	m.mu.Lock()
	m.tasks[task.ID] = &taskEntry{task: task, exited: true}
	snapshot := task.Clone()
	m.mu.Unlock()

	m.mirrorSpawn(snapshot)
	log.Printf("[supervisor] spawn of %s task %s failed: %v", task.Agent, task.ID, cause)
	return snapshot, fmt.Errorf("%w: %w", ErrSpawnFailure, cause)
}

func (m *Manager) mirrorSpawn(task *models.AgentTask) {
	m.mirror("upsert project", func(ctx context.Context, s Store) error {
		return s.UpsertProject(ctx, m.projectName, m.opts.ProjectPath, task.StartedAt)
	})
	m.mirror("insert task "+task.ID, func(ctx context.Context, s Store) error {
		return s.InsertTask(ctx, task)
	})
}

// mirror runs a store write. Failures are logged and never returned.
func (m *Manager) mirror(what string, fn func(ctx context.Context, s Store) error) {
	if m.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	if err := fn(ctx, m.opts.Store); err != nil {
		log.Printf("[supervisor] store: %s: %v", what, err)
	}
}

// GetStatus returns a task's current record. In blocking mode it waits
// until the task leaves running or the timeout elapses; a timeout is
// reported through TimedOut, not as an error.
func (m *Manager) GetStatus(ctx context.Context, taskID string, opts StatusOptions) (*StatusResult, error) {
	task, err := m.refresh(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !opts.Block || task.Status.Terminal() {
		return &StatusResult{Task: task}, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			task, err := m.refresh(ctx, taskID)
			if err != nil {
				return nil, err
			}
			return &StatusResult{Task: task, TimedOut: !task.Status.Terminal()}, nil
		case <-ticker.C:
			task, err := m.refresh(ctx, taskID)
			if err != nil {
				return nil, err
			}
			if task.Status.Terminal() {
				return &StatusResult{Task: task}, nil
			}
		}
	}
}

// refresh re-derives a running task's status: a pending exit is settled
// first, otherwise the OS is asked whether the pid is alive.
func (m *Manager) refresh(ctx context.Context, taskID string) (*models.AgentTask, error) {
	m.mu.RLock()
	e, ok := m.tasks[taskID]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	proc, exited := e.proc, e.exited
	m.mu.RUnlock()

	// Settling goes through the loop even when the exit was already
	// delivered, so the footer and store writes are done on return.
	switch {
	case proc == nil:
	case proc.exited():
		m.send(ctx, &exitEvent{taskID: taskID, code: proc.exitCode, reply: make(chan struct{})})
	case !exited && !proc.alive():
		m.send(ctx, &exitEvent{taskID: taskID, vanished: true, reply: make(chan struct{})})
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.task.Clone(), nil
}

// List returns every task observed by this supervisor, oldest first.
func (m *Manager) List() []*models.AgentTask {
	m.mu.RLock()
	tasks := make([]*models.AgentTask, 0, len(m.tasks))
	for _, e := range m.tasks {
		tasks = append(tasks, e.task.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].StartedAt.Equal(tasks[j].StartedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].StartedAt.Before(tasks[j].StartedAt)
	})
	return tasks
}

// Kill signals a running task's process group and marks it failed with
// KilledExitCode. It does not wait for the process to exit.
func (m *Manager) Kill(ctx context.Context, taskID string) (*models.AgentTask, error) {
	ev := &killEvent{taskID: taskID, reply: make(chan killReply, 1)}
	if err := m.send(ctx, ev); err != nil {
		return nil, err
	}
	select {
	case r := <-ev.reply:
		return r.task, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) waitExit(taskID string, proc *process) {
	<-proc.done
	select {
	case m.events <- &exitEvent{taskID: taskID, code: proc.exitCode}:
	case <-m.quit:
	}
}

// send delivers an event to the loop and, for events with a reply,
// waits for it to be handled.
func (m *Manager) send(ctx context.Context, ev event) error {
	select {
	case m.events <- ev:
	case <-m.quit:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if done := ev.handled(); done != nil {
		select {
		case <-done:
		case <-m.quit:
			return errClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
