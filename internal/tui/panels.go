package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Panel indices for focus.
const (
	panelAgents     = 0
	panelTranscript = 1
)

// splitRatio is the agent list's share of the screen width.
const splitRatio = 0.42

// panelLayout holds computed dimensions for the two-panel layout.
type panelLayout struct {
	leftWidth     int
	rightWidth    int
	contentHeight int
}

// Inner sizes are the usable space inside a bordered panel.
func (l panelLayout) leftInner() int  { return max(l.leftWidth-2, 1) }
func (l panelLayout) rightInner() int { return max(l.rightWidth-2, 1) }
func (l panelLayout) innerHeight() int {
	return max(l.contentHeight-2, 1)
}

func computeLayout(width, height int) panelLayout {
	// Reserve 1 line for the header and 1 for the status bar.
	contentHeight := max(height-2, 1)

	leftWidth := max(int(float64(width)*splitRatio), 10)
	rightWidth := max(width-leftWidth, 10)

	return panelLayout{
		leftWidth:     leftWidth,
		rightWidth:    rightWidth,
		contentHeight: contentHeight,
	}
}

func renderPanels(leftContent, rightContent string, layout panelLayout, focusedPanel int) string {
	leftStyle := unfocusedBorderStyle
	rightStyle := unfocusedBorderStyle
	if focusedPanel == panelAgents {
		leftStyle = focusedBorderStyle
	} else {
		rightStyle = focusedBorderStyle
	}

	innerHeight := layout.innerHeight()

	left := leftStyle.
		Width(layout.leftInner()).
		Height(innerHeight).
		Render(truncateContent(leftContent, layout.leftInner(), innerHeight))

	right := rightStyle.
		Width(layout.rightInner()).
		Height(innerHeight).
		Render(truncateContent(rightContent, layout.rightInner(), innerHeight))

	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

// truncateContent clips content to the given dimensions (ANSI-aware).
func truncateContent(content string, width, height int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}
