package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

// maxToolResultLines bounds how much of one tool result is shown inline.
const maxToolResultLines = 6

// kindCycle is the order the event filter steps through. Empty shows all.
var kindCycle = []transcript.EventKind{
	"",
	transcript.KindText,
	transcript.KindToolCall,
	transcript.KindToolResult,
	transcript.KindResult,
	transcript.KindError,
}

// TranscriptView renders the parsed transcript of one task in a viewport.
type TranscriptView struct {
	task     *models.AgentTask
	events   []transcript.Event
	kind     transcript.EventKind
	follow   bool
	ended    bool
	viewport viewport.Model
	width    int
	height   int
}

// NewTranscriptView creates an empty transcript view in follow mode.
func NewTranscriptView() *TranscriptView {
	return &TranscriptView{
		follow:   true,
		viewport: viewport.New(80, 24),
	}
}

// SetSize updates dimensions.
func (tv *TranscriptView) SetSize(width, height int) {
	tv.width = width
	tv.height = height
	tv.viewport.Width = width
	vpHeight := height - 2
	if vpHeight < 1 {
		vpHeight = 1
	}
	tv.viewport.Height = vpHeight
	tv.refresh()
}

// Open switches the view to a task and clears its events.
func (tv *TranscriptView) Open(task *models.AgentTask) {
	tv.task = task
	tv.events = nil
	tv.follow = true
	tv.ended = false
	tv.refresh()
}

// Close clears the view.
func (tv *TranscriptView) Close() {
	tv.task = nil
	tv.events = nil
	tv.ended = false
	tv.viewport.SetContent("")
}

// TaskID returns the open task's ID, or "".
func (tv *TranscriptView) TaskID() string {
	if tv.task == nil {
		return ""
	}
	return tv.task.ID
}

// UpdateTask refreshes the header data of the open task.
func (tv *TranscriptView) UpdateTask(task *models.AgentTask) {
	if tv.task != nil && task != nil && task.ID == tv.task.ID {
		tv.task = task
	}
}

// SetEvents replaces the rendered events.
func (tv *TranscriptView) SetEvents(events []transcript.Event) {
	tv.events = events
	tv.refresh()
}

// SetEnded marks the log stream as closed.
func (tv *TranscriptView) SetEnded(ended bool) {
	tv.ended = ended
}

// CycleKind steps the event kind filter.
func (tv *TranscriptView) CycleKind() {
	for i, k := range kindCycle {
		if k == tv.kind {
			tv.kind = kindCycle[(i+1)%len(kindCycle)]
			break
		}
	}
	tv.refresh()
}

// Kind returns the active event filter, empty for all.
func (tv *TranscriptView) Kind() transcript.EventKind {
	return tv.kind
}

// Following reports whether new events scroll the view to the bottom.
func (tv *TranscriptView) Following() bool {
	return tv.follow
}

// ToggleFollow switches follow mode and jumps to the bottom when enabled.
func (tv *TranscriptView) ToggleFollow() {
	tv.follow = !tv.follow
	if tv.follow {
		tv.viewport.GotoBottom()
	}
}

// ScrollUp scrolls up n lines and leaves follow mode.
func (tv *TranscriptView) ScrollUp(n int) {
	tv.viewport.LineUp(n)
	tv.follow = false
}

// ScrollDown scrolls down n lines. Reaching the bottom resumes following.
func (tv *TranscriptView) ScrollDown(n int) {
	tv.viewport.LineDown(n)
	tv.follow = tv.viewport.AtBottom()
}

// PageUp scrolls half a page up.
func (tv *TranscriptView) PageUp() {
	tv.viewport.HalfViewUp()
	tv.follow = false
}

// PageDown scrolls half a page down.
func (tv *TranscriptView) PageDown() {
	tv.viewport.HalfViewDown()
	tv.follow = tv.viewport.AtBottom()
}

// Top jumps to the first event.
func (tv *TranscriptView) Top() {
	tv.viewport.GotoTop()
	tv.follow = false
}

// Bottom jumps to the last event and resumes following.
func (tv *TranscriptView) Bottom() {
	tv.viewport.GotoBottom()
	tv.follow = true
}

func (tv *TranscriptView) refresh() {
	if tv.task == nil {
		return
	}
	events := tv.events
	if tv.kind != "" {
		events = transcript.Filter(events, tv.kind)
	}
	tv.viewport.SetContent(renderEvents(events, tv.width))
	if tv.follow {
		tv.viewport.GotoBottom()
	}
}

// View renders the transcript panel.
func (tv *TranscriptView) View() string {
	if tv.task == nil {
		return lipgloss.NewStyle().Foreground(colorDim).Width(tv.width).Align(lipgloss.Center).
			Render("\nSelect an agent and press Enter to view its transcript.")
	}

	t := tv.task
	title := fmt.Sprintf("%s  %s  %s", panelTitleStyle.Render(t.Agent), dimStyle.Render(shortID(t.ID)), statusLabel(t.Status))
	if t.ExitCode != nil {
		title += dimStyle.Render(fmt.Sprintf("  exit %d", *t.ExitCode))
	}
	if t.UsageReported {
		title += dimStyle.Render(fmt.Sprintf("  %d in / %d out", t.InputTokens, t.OutputTokens))
	}

	var flags []string
	if tv.follow {
		flags = append(flags, followOnStyle.Render("following"))
	}
	if tv.kind != "" {
		flags = append(flags, filterActiveStyle.Render("filter: "+string(tv.kind)))
	}
	if tv.ended && t.Status == models.TaskStatusRunning {
		flags = append(flags, badgeOfflineStyle.Render("stream closed"))
	}
	sub := dimStyle.Render(firstLine(t.Description))
	if len(flags) > 0 {
		sub = strings.Join(flags, dimStyle.Render(" · ")) + dimStyle.Render(" · ") + sub
	}

	return title + "\n" + sub + "\n" + tv.viewport.View()
}

// renderEvents formats transcript events for display at the given width.
func renderEvents(events []transcript.Event, width int) string {
	if len(events) == 0 {
		return dimStyle.Render("No output yet.")
	}

	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderEvent(ev, wrap))
		b.WriteString("\n")
	}
	return b.String()
}

func renderEvent(ev transcript.Event, wrap lipgloss.Style) string {
	switch ev.Kind {
	case transcript.KindText:
		return wrap.Render(ev.Content)
	case transcript.KindToolCall:
		line := eventToolStyle.Render("▸ " + ev.Tool)
		if ev.ToolInput != "" {
			line += " " + dimStyle.Render(ev.ToolInput)
		}
		return wrap.Render(line)
	case transcript.KindToolResult:
		return eventOutputStyle.Inherit(wrap).Render(clipLines(ev.Content, maxToolResultLines))
	case transcript.KindResult:
		out := eventResultStyle.Render("✓ result")
		if ev.Stats != nil {
			out += " " + dimStyle.Render(formatStats(ev.Stats))
		}
		if ev.Content != "" {
			out += "\n" + wrap.Render(ev.Content)
		}
		return out
	case transcript.KindError:
		return eventErrorStyle.Render("✗ error") + "\n" + wrap.Render(ev.Content)
	}
	return wrap.Render(ev.Content)
}

func formatStats(s *transcript.ResultStats) string {
	parts := []string{fmt.Sprintf("%d turns", s.NumTurns)}
	if s.DurationMS > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", float64(s.DurationMS)/1000))
	}
	if s.InputTokens > 0 || s.OutputTokens > 0 {
		parts = append(parts, fmt.Sprintf("%d in / %d out", s.InputTokens, s.OutputTokens))
	}
	if s.CostUSD > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", s.CostUSD))
	}
	return strings.Join(parts, " · ")
}

// clipLines keeps the first n lines of s and notes how many were hidden.
func clipLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	hidden := len(lines) - n
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", hidden)
}
