package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// RoleExt is the file extension of role definitions.
const RoleExt = ".md"

var (
	investigateTools = []string{"Read", "Grep", "Glob", "WebFetch", "WebSearch"}
	implementTools   = append(append([]string{}, investigateTools...),
		"Edit", "Write", "Bash", "MultiEdit", "NotebookEdit")
)

// AllowedTools returns the tool set granted to a mode.
func AllowedTools(mode models.Mode) []string {
	if mode == models.ModeImplement {
		return implementTools
	}
	return investigateTools
}

// capabilityStatement tells the agent what it may do in a mode.
func capabilityStatement(mode models.Mode) string {
	tools := strings.Join(AllowedTools(mode), ", ")
	if mode == models.ModeImplement {
		return "## Mode: implement\n\n" +
			"You may read and modify files and run commands to complete the task. " +
			"Available tools: " + tools + "."
	}
	return "## Mode: investigate\n\n" +
		"You have read-only access. Do not modify files or run commands that change state; " +
		"report your findings. Available tools: " + tools + "."
}

// ListRoles returns the role names defined in dir, sorted.
func ListRoles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var roles []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), RoleExt) {
			continue
		}
		roles = append(roles, strings.TrimSuffix(e.Name(), RoleExt))
	}
	sort.Strings(roles)
	return roles, nil
}

// LoadRole reads the definition of a role. A missing file yields
// ErrAgentNotFound naming the roles that do exist.
func LoadRole(dir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", roleNotFound(dir, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name+RoleExt))
	if err != nil {
		if os.IsNotExist(err) {
			return "", roleNotFound(dir, name)
		}
		return "", fmt.Errorf("failed to read role %s: %w", name, err)
	}
	return string(data), nil
}

func roleNotFound(dir, name string) error {
	roles, _ := ListRoles(dir)
	available := "none"
	if len(roles) > 0 {
		available = strings.Join(roles, ", ")
	}
	return fmt.Errorf("%w: %q (available: %s)", ErrAgentNotFound, name, available)
}

// buildPayload assembles the instruction handed to the agent.
func buildPayload(role string, mode models.Mode, description string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(role))
	b.WriteString("\n\n")
	b.WriteString(capabilityStatement(mode))
	b.WriteString("\n\n## Task\n\n")
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\n")
	return b.String()
}

// buildArgs returns the agent command line for a payload.
func buildArgs(payload string, mode models.Mode) []string {
	return []string{
		"-p", payload,
		"--output-format", "stream-json",
		"--verbose",
		"--allowedTools", strings.Join(AllowedTools(mode), ","),
	}
}
