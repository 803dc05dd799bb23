package config

import (
	"os"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// Environment overrides.
const (
	ClaudePathEnv = "AGENTWATCH_CLAUDE_PATH"
	RolesDirEnv   = "AGENTWATCH_ROLES_DIR"
)

// LoadSettings loads the global settings from ~/.agentwatch/settings.yaml.
// If the file doesn't exist, returns default settings. Environment
// overrides are applied on top of the file.
func LoadSettings() (*models.Settings, error) {
	path, err := GlobalSettingsFile()
	if err != nil {
		return nil, err
	}
	settings, err := LoadYAMLOrDefault(path, models.NewSettings)
	if err != nil {
		return nil, err
	}
	settings.ApplyDefaults()

	if p := os.Getenv(ClaudePathEnv); p != "" {
		settings.Agent.Path = p
	}
	if d := os.Getenv(RolesDirEnv); d != "" {
		settings.RolesDir = d
	}
	return settings, nil
}

// SaveSettings saves the global settings to ~/.agentwatch/settings.yaml.
func SaveSettings(settings *models.Settings) error {
	path, err := GlobalSettingsFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, settings)
}

// RolesDir resolves the role definition directory for a project.
func RolesDir(settings *models.Settings, projectPath string) string {
	if settings != nil && settings.RolesDir != "" {
		return settings.RolesDir
	}
	return ProjectRolesDir(projectPath)
}
