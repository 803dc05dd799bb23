package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/watchfire-io/agentwatch/internal/models"
)

func renderHeader(m *Model, width int) string {
	dot := lipgloss.NewStyle().Foreground(colorOrange).Render("●")
	name := lipgloss.NewStyle().Bold(true).Render("agentwatch")

	scope := dimStyle.Render("all projects")
	if m.project != "" {
		scope = lipgloss.NewStyle().Foreground(colorCyan).Render(m.project)
	}
	if f := m.agentList.StatusFilter(); f != "" {
		scope += dimStyle.Render(" · ") + filterActiveStyle.Render(string(f))
	}

	left := fmt.Sprintf(" %s %s  %s", dot, name, scope)
	right := renderCounts(m.agentList.Counts(), m.stats) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return headerStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

// renderCounts shows live per-status counts, plus store-wide token totals
// once stats have loaded.
func renderCounts(counts map[models.TaskStatus]int, stats *models.Stats) string {
	var parts []string
	if n := counts[models.TaskStatusRunning]; n > 0 {
		parts = append(parts, badgeActiveStyle.Render(fmt.Sprintf("● %d running", n)))
	} else {
		parts = append(parts, badgeIdleStyle.Render("● idle"))
	}
	if n := counts[models.TaskStatusFailed]; n > 0 {
		parts = append(parts, badgeFailedStyle.Render(fmt.Sprintf("✗ %d failed", n)))
	}
	if n := counts[models.TaskStatusCompleted]; n > 0 {
		parts = append(parts, statusCompletedStyle.Render(fmt.Sprintf("✓ %d done", n)))
	}
	if stats != nil && (stats.InputTokens > 0 || stats.OutputTokens > 0) {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%s tokens", formatTokens(stats.InputTokens+stats.OutputTokens))))
	}
	return strings.Join(parts, "  ")
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
