package tui

import "github.com/charmbracelet/lipgloss"

// Colors using AdaptiveColor for light/dark terminal support.
var (
	colorWhite  = lipgloss.AdaptiveColor{Light: "0", Dark: "15"}
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	colorOrange = lipgloss.AdaptiveColor{Light: "166", Dark: "208"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}
)

// Layout styles.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(lipgloss.AdaptiveColor{Light: "235", Dark: "236"})

	focusedBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorWhite)

	unfocusedBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorDim)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)
)

// Agent list styles.
var (
	statusRunningStyle   = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	statusCompletedStyle = lipgloss.NewStyle().Foreground(colorCyan)
	statusFailedStyle    = lipgloss.NewStyle().Foreground(colorRed)

	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite)

	selectedItemStyle = lipgloss.NewStyle().
				Background(lipgloss.AdaptiveColor{Light: "254", Dark: "237"})

	dimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// Header badge styles.
var (
	badgeIdleStyle    = lipgloss.NewStyle().Foreground(colorDim)
	badgeActiveStyle  = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	badgeFailedStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	badgeOfflineStyle = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
)

// Transcript styles.
var (
	eventToolStyle    = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	eventResultStyle  = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	eventErrorStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	eventOutputStyle  = lipgloss.NewStyle().Foreground(colorDim)
	followOnStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	filterActiveStyle = lipgloss.NewStyle().Foreground(colorOrange).Bold(true)
)

// Overlay styles.
var (
	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWhite).
			Padding(1, 2)

	overlayTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite).
				MarginBottom(1)

	overlayDimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// Error banner style.
var errorBannerStyle = lipgloss.NewStyle().
	Background(colorRed).
	Foreground(lipgloss.AdaptiveColor{Light: "15", Dark: "15"}).
	Bold(true).
	Padding(0, 1)

// Key hint styles for status bar.
var (
	keyStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	hintStyle = lipgloss.NewStyle().Foreground(colorDim)
)
