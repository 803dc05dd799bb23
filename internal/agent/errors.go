package agent

import "errors"

var (
	// ErrAgentNotFound is returned when no role file exists for the agent name.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotRunning is returned when killing a task that is not running.
	ErrNotRunning = errors.New("task is not running")

	// ErrSpawnFailure is returned when the agent process could not be started.
	// The task record is still returned, with status failed.
	ErrSpawnFailure = errors.New("spawn failed")

	// ErrInvalidMode is returned for a mode other than investigate or implement.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidPattern is returned when a search pattern does not compile.
	ErrInvalidPattern = errors.New("invalid search pattern")

	errClosed = errors.New("supervisor closed")
)
