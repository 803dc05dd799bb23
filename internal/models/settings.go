package models

// AgentConfig holds configuration for the agent executable.
type AgentConfig struct {
	Path string `yaml:"path"` // empty = lookup in PATH
}

// DashboardConfig holds settings for the dashboard server.
type DashboardConfig struct {
	PortStart        int  `yaml:"port_start"`
	PortEnd          int  `yaml:"port_end"`
	RetentionDays    int  `yaml:"retention_days"`
	ArchiveLogs      bool `yaml:"archive_logs"`
	KeepaliveSeconds int  `yaml:"keepalive_seconds"`
}

// Settings represents global application settings.
// This corresponds to ~/.agentwatch/settings.yaml.
type Settings struct {
	Version   int             `yaml:"version"`
	Agent     AgentConfig     `yaml:"agent"`
	RolesDir  string          `yaml:"roles_dir"` // empty = <project>/.claude/agents
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version: 1,
		Dashboard: DashboardConfig{
			PortStart:        7420,
			PortEnd:          7429,
			RetentionDays:    7,
			ArchiveLogs:      true,
			KeepaliveSeconds: 15,
		},
	}
}

// ApplyDefaults fills zero values left by a partial settings file.
func (s *Settings) ApplyDefaults() {
	d := NewSettings().Dashboard
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Dashboard.PortStart == 0 {
		s.Dashboard.PortStart = d.PortStart
	}
	if s.Dashboard.PortEnd < s.Dashboard.PortStart {
		s.Dashboard.PortEnd = s.Dashboard.PortStart + (d.PortEnd - d.PortStart)
	}
	if s.Dashboard.RetentionDays <= 0 {
		s.Dashboard.RetentionDays = d.RetentionDays
	}
	if s.Dashboard.KeepaliveSeconds <= 0 {
		s.Dashboard.KeepaliveSeconds = d.KeepaliveSeconds
	}
}
