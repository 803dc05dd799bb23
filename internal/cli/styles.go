package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// Adaptive colors matching the TUI palette.
var (
	colorWhite  = lipgloss.AdaptiveColor{Light: "0", Dark: "15"}
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}
)

// Semantic styles for CLI output.
var (
	styleBrand   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleVersion = lipgloss.NewStyle().Foreground(colorGreen)
	styleLabel   = lipgloss.NewStyle().Foreground(colorDim)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	styleHint    = lipgloss.NewStyle().Foreground(colorDim)
	styleCommand = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
)

// Task status badge styles.
var (
	badgeRunning   = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	badgeCompleted = lipgloss.NewStyle().Foreground(colorCyan)
	badgeFailed    = lipgloss.NewStyle().Foreground(colorRed)
)

// colorOutput is false when stdout is not a terminal, so piped output stays
// free of escape sequences.
var colorOutput = true

func initStyles() {
	colorOutput = term.IsTerminal(int(os.Stdout.Fd()))
}

// paint renders text in a style when writing to a terminal.
func paint(s lipgloss.Style, text string) string {
	if !colorOutput {
		return text
	}
	return s.Render(text)
}

func statusBadge(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusRunning:
		return paint(badgeRunning, "●")
	case models.TaskStatusCompleted:
		return paint(badgeCompleted, "✓")
	case models.TaskStatusFailed:
		return paint(badgeFailed, "✗")
	}
	return " "
}
