// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

const (
	// GlobalDirName is the name of the global agentwatch directory.
	GlobalDirName = ".agentwatch"

	// HomeEnv overrides the global directory location.
	HomeEnv = "AGENTWATCH_HOME"

	// LogsDirName is the name of the logs directory.
	LogsDirName = "logs"

	// RolesDirName is the per-project directory holding agent role files.
	RolesDirName = ".claude/agents"
)

// File names
const (
	SettingsFileName      = "settings.yaml"
	StoreFileName         = "agentwatch.db"
	DashboardPIDFileName  = "dashboard.pid"
	DashboardPortFileName = "dashboard.port"
	DashboardLockFileName = "dashboard.lock"
	DashboardLogFileName  = "dashboard.log"
	EnvFileName           = ".env"
)

// GlobalDir returns the path to the global agentwatch directory (~/.agentwatch/).
func GlobalDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalDirName), nil
}

func globalPath(name string) (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// GlobalSettingsFile returns the path to the settings.yaml file.
func GlobalSettingsFile() (string, error) {
	return globalPath(SettingsFileName)
}

// GlobalLogsDir returns the path to the logs directory.
func GlobalLogsDir() (string, error) {
	return globalPath(LogsDirName)
}

// StorePath returns the path to the shared SQLite database.
func StorePath() (string, error) {
	return globalPath(StoreFileName)
}

// DashboardPIDFile returns the path to the dashboard pid marker.
func DashboardPIDFile() (string, error) {
	return globalPath(DashboardPIDFileName)
}

// DashboardPortFile returns the path to the dashboard port marker.
func DashboardPortFile() (string, error) {
	return globalPath(DashboardPortFileName)
}

// DashboardLockFile returns the path to the dashboard single-instance lock.
func DashboardLockFile() (string, error) {
	return globalPath(DashboardLockFileName)
}

// DashboardLogFile returns the path the background dashboard logs to.
func DashboardLogFile() (string, error) {
	return globalPath(DashboardLogFileName)
}

// ProjectRolesDir returns the default role directory for a project.
func ProjectRolesDir(projectPath string) string {
	return filepath.Join(projectPath, RolesDirName)
}

// EnsureGlobalDir creates the global agentwatch directory if it doesn't exist.
func EnsureGlobalDir() error {
	dir, err := GlobalDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// EnsureGlobalLogsDir creates the global logs directory if it doesn't exist.
func EnsureGlobalLogsDir() error {
	dir, err := GlobalLogsDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
