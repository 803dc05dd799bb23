package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// DashboardHost is the only address the dashboard binds.
const DashboardHost = "127.0.0.1"

// ErrDashboardLocked is returned when another dashboard holds the lock.
var ErrDashboardLocked = errors.New("dashboard already running")

// AcquireDashboardLock takes the single-instance lock for the dashboard.
// The caller must Unlock the returned lock on shutdown.
func AcquireDashboardLock() (*flock.Flock, error) {
	if err := EnsureGlobalDir(); err != nil {
		return nil, err
	}
	path, err := DashboardLockFile()
	if err != nil {
		return nil, err
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrDashboardLocked
	}
	return lock, nil
}

// SaveDashboardInfo writes the pid and port marker files.
func SaveDashboardInfo(info *models.DashboardInfo) error {
	if err := EnsureGlobalDir(); err != nil {
		return err
	}
	pidPath, err := DashboardPIDFile()
	if err != nil {
		return err
	}
	portPath, err := DashboardPortFile()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(pidPath, []byte(strconv.Itoa(info.PID)+"\n")); err != nil {
		return err
	}
	return writeFileAtomic(portPath, []byte(strconv.Itoa(info.Port)+"\n"))
}

// LoadDashboardInfo reads the marker files.
// Returns nil if either marker is missing.
func LoadDashboardInfo() (*models.DashboardInfo, error) {
	pidPath, err := DashboardPIDFile()
	if err != nil {
		return nil, err
	}
	portPath, err := DashboardPortFile()
	if err != nil {
		return nil, err
	}
	if !FileExists(pidPath) || !FileExists(portPath) {
		return nil, nil
	}

	pid, err := readIntFile(pidPath)
	if err != nil {
		return nil, err
	}
	port, err := readIntFile(portPath)
	if err != nil {
		return nil, err
	}

	info := &models.DashboardInfo{Host: DashboardHost, Port: port, PID: pid}
	if st, err := os.Stat(pidPath); err == nil {
		info.StartedAt = st.ModTime().UTC()
	}
	return info, nil
}

// RemoveDashboardInfo removes the marker files.
func RemoveDashboardInfo() error {
	var errs []error
	for _, pathFn := range []func() (string, error){DashboardPIDFile, DashboardPortFile} {
		path, err := pathFn()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsDashboardRunning checks if the dashboard process is still running.
// Returns true if the markers exist and the PID is alive. Stale markers
// are removed.
func IsDashboardRunning() (bool, *models.DashboardInfo, error) {
	info, err := LoadDashboardInfo()
	if err != nil {
		return false, nil, err
	}
	if info == nil {
		return false, nil, nil
	}

	if !ProcessAlive(info.PID) {
		_ = RemoveDashboardInfo()
		return false, info, nil
	}
	return true, info, nil
}

// ProcessAlive reports whether a pid answers signal 0.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		// On Unix, FindProcess always succeeds
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// WaitForDashboard polls the markers until the dashboard is up or the
// timeout elapses.
func WaitForDashboard(timeout time.Duration) (*models.DashboardInfo, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, info, err := IsDashboardRunning()
		if err == nil && running {
			return info, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("dashboard did not start within %s", timeout)
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid marker %s: %w", path, err)
	}
	return n, nil
}
