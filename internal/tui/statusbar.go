package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func renderStatusBar(m *Model, width int) string {
	if m.err != nil {
		return renderErrorBar(m.err.Error(), width)
	}

	left := " " + getKeyHints(m)

	right := ""
	if m.connected {
		right = lipgloss.NewStyle().Foreground(colorGreen).Render("Connected "+m.serverVersion) + " "
	} else {
		right = badgeOfflineStyle.Render("⚠ Disconnected") + " "
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return statusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func getKeyHints(m *Model) string {
	if m.activeOverlay != overlayNone {
		return keyHint("Esc", "close")
	}

	base := keyHint("q", "quit") + "  " + keyHint("?", "help") + "  " + keyHint("Tab", "switch")

	if m.focusedPanel == panelAgents {
		return base + "  " + keyHint("j/k", "navigate") + "  " + keyHint("Enter", "open") + "  " +
			keyHint("s", "status filter")
	}
	if m.transcript.TaskID() == "" {
		return base
	}
	return base + "  " + keyHint("j/k", "scroll") + "  " + keyHint("f", "follow") + "  " +
		keyHint("e", "event filter") + "  " + keyHint("Esc", "back")
}

func keyHint(k, desc string) string {
	if k == "" {
		return hintStyle.Render(desc)
	}
	return keyStyle.Render(k) + " " + hintStyle.Render(desc)
}

func renderErrorBar(msg string, width int) string {
	return errorBannerStyle.Width(width).Render(msg)
}
