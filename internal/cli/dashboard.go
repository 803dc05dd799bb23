package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/watchfire-io/agentwatch/internal/client"
	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
)

// dashboardBinary is the daemon executable name.
const dashboardBinary = "agentwatchd"

const dashboardStartTimeout = 5 * time.Second

// EnsureDashboard makes sure the dashboard is running, starting it if
// necessary, and returns a client for it.
func EnsureDashboard() (*client.Client, error) {
	running, info, err := config.IsDashboardRunning()
	if err != nil {
		return nil, fmt.Errorf("failed to check dashboard status: %w", err)
	}
	if running {
		return client.New(info.BaseURL()), nil
	}

	info, err = startDashboard()
	if err != nil {
		return nil, err
	}
	return client.New(info.BaseURL()), nil
}

// startDashboard starts the dashboard process in the background and waits
// for its markers to appear.
func startDashboard() (*models.DashboardInfo, error) {
	daemonPath, err := findDashboardBinary()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureGlobalDir(); err != nil {
		return nil, err
	}

	cmd := exec.Command(daemonPath)
	cmd.Stdin = nil
	cmd.Stdout = nil
	if logPath, err := config.DashboardLogFile(); err == nil {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			cmd.Stderr = f
			defer f.Close()
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start dashboard: %w", err)
	}
	// The dashboard outlives this process; don't leave a zombie behind
	// while we wait.
	go func() { _ = cmd.Wait() }()

	return config.WaitForDashboard(dashboardStartTimeout)
}

// findDashboardBinary locates the agentwatchd binary.
func findDashboardBinary() (string, error) {
	if path, err := exec.LookPath(dashboardBinary); err == nil {
		return path, nil
	}

	// Same directory as the running executable.
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), dashboardBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	candidate := filepath.Join("build", dashboardBinary)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	return "", fmt.Errorf("%s not found. Install or build it first", dashboardBinary)
}
