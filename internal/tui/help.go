package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Overlay identifiers.
const (
	overlayNone = iota
	overlayHelp
)

type helpSection struct {
	title string
	keys  []helpKey
}

type helpKey struct {
	key  string
	desc string
}

var helpSections = []helpSection{
	{
		title: "Global",
		keys: []helpKey{
			{"q / Ctrl+c", "Quit"},
			{"?", "Toggle help"},
			{"Tab", "Switch panel focus"},
		},
	},
	{
		title: "Agents",
		keys: []helpKey{
			{"j/k ↑/↓", "Navigate agents"},
			{"Enter", "Open transcript"},
			{"s", "Cycle status filter"},
		},
	},
	{
		title: "Transcript",
		keys: []helpKey{
			{"j/k ↑/↓", "Scroll"},
			{"PgUp/PgDn", "Scroll half a page"},
			{"g / G", "Top / bottom"},
			{"f", "Toggle follow"},
			{"e", "Cycle event filter"},
			{"Esc", "Back to agents"},
		},
	},
}

// renderHelp renders the help overlay content.
func renderHelp(width int) string {
	maxWidth := min(56, width-4)
	maxWidth = max(maxWidth, 30)

	sections := make([]string, 0, len(helpSections)*5+3)
	sections = append(sections, overlayTitleStyle.Render("Keyboard Shortcuts"))

	for _, sec := range helpSections {
		header := lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Render(sec.title)
		sections = append(sections, "", header)

		for _, k := range sec.keys {
			keyCol := lipgloss.NewStyle().
				Width(14).
				Foreground(colorWhite).
				Bold(true).
				Render(k.key)
			sections = append(sections, "  "+keyCol+overlayDimStyle.Render(k.desc))
		}
	}

	sections = append(sections, "", overlayDimStyle.Render("Press Esc or ? to close"))
	return overlayStyle.Width(maxWidth).Render(strings.Join(sections, "\n"))
}

// placeOverlay centers an overlay box over a dimmed screen.
func placeOverlay(box string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(colorDim),
	)
}
