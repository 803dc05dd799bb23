package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// Spinner frames for running task animation.
var spinnerFrames = []string{"●", "○"}

// agentColumnWidth is the fixed display width of the agent name column.
const agentColumnWidth = 14

// AgentList is the agent task list for the left panel.
type AgentList struct {
	tasks        []*models.AgentTask
	flatItems    []agentItem // Flattened list for cursor navigation
	cursor       int
	scrollOffset int
	height       int
	spinnerFrame int
	statusFilter models.TaskStatus
	loaded       bool
}

type agentItem struct {
	task      *models.AgentTask
	isHeader  bool
	headerStr string
}

// NewAgentList creates an empty agent list.
func NewAgentList() *AgentList {
	return &AgentList{}
}

// SetTasks replaces the task list. The cursor stays on the selected task
// when it is still present.
func (al *AgentList) SetTasks(tasks []*models.AgentTask) {
	var selectedID string
	if t := al.SelectedTask(); t != nil {
		selectedID = t.ID
	}

	al.tasks = tasks
	al.loaded = true
	al.rebuild()

	al.cursor = 0
	if selectedID != "" {
		for i, item := range al.flatItems {
			if !item.isHeader && item.task.ID == selectedID {
				al.cursor = i
				break
			}
		}
	}
	al.skipHeaders(1)
	al.ensureVisible()
}

// SetHeight sets the visible height.
func (al *AgentList) SetHeight(h int) {
	al.height = h
}

// StatusFilter returns the active status filter, empty for all.
func (al *AgentList) StatusFilter() models.TaskStatus {
	return al.statusFilter
}

// CycleStatusFilter steps through all, running, completed and failed.
func (al *AgentList) CycleStatusFilter() {
	switch al.statusFilter {
	case "":
		al.statusFilter = models.TaskStatusRunning
	case models.TaskStatusRunning:
		al.statusFilter = models.TaskStatusCompleted
	case models.TaskStatusCompleted:
		al.statusFilter = models.TaskStatusFailed
	default:
		al.statusFilter = ""
	}
	al.SetTasks(al.tasks)
}

// Counts returns the number of tasks per status, ignoring the filter.
func (al *AgentList) Counts() map[models.TaskStatus]int {
	counts := make(map[models.TaskStatus]int, 3)
	for _, t := range al.tasks {
		counts[t.Status]++
	}
	return counts
}

// Task returns the task with the given ID, or nil.
func (al *AgentList) Task(id string) *models.AgentTask {
	for _, t := range al.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// SelectedTask returns the currently selected task, or nil.
func (al *AgentList) SelectedTask() *models.AgentTask {
	if al.cursor < 0 || al.cursor >= len(al.flatItems) {
		return nil
	}
	item := al.flatItems[al.cursor]
	if item.isHeader {
		return nil
	}
	return item.task
}

// MoveUp moves the cursor up, skipping headers.
func (al *AgentList) MoveUp() {
	if len(al.flatItems) == 0 {
		return
	}
	al.cursor--
	if al.cursor < 0 {
		al.cursor = 0
	}
	al.skipHeaders(-1)
	al.ensureVisible()
}

// MoveDown moves the cursor down, skipping headers.
func (al *AgentList) MoveDown() {
	if len(al.flatItems) == 0 {
		return
	}
	al.cursor++
	if al.cursor >= len(al.flatItems) {
		al.cursor = len(al.flatItems) - 1
	}
	al.skipHeaders(1)
	al.ensureVisible()
}

func (al *AgentList) skipHeaders(direction int) {
	for al.cursor >= 0 && al.cursor < len(al.flatItems) && al.flatItems[al.cursor].isHeader {
		al.cursor += direction
	}
	if al.cursor < 0 {
		al.cursor = 0
		for al.cursor < len(al.flatItems) && al.flatItems[al.cursor].isHeader {
			al.cursor++
		}
	}
	if al.cursor >= len(al.flatItems) {
		al.cursor = len(al.flatItems) - 1
		for al.cursor >= 0 && al.flatItems[al.cursor].isHeader {
			al.cursor--
		}
	}
}

func (al *AgentList) ensureVisible() {
	if al.height <= 0 {
		return
	}
	if al.cursor < al.scrollOffset {
		al.scrollOffset = al.cursor
	}
	if al.cursor >= al.scrollOffset+al.height {
		al.scrollOffset = al.cursor - al.height + 1
	}
	if al.scrollOffset < 0 {
		al.scrollOffset = 0
	}
}

// rebuild groups tasks into Running, Failed and Completed sections, newest
// first within each.
func (al *AgentList) rebuild() {
	groups := make(map[models.TaskStatus][]*models.AgentTask, 3)
	for _, t := range al.tasks {
		if al.statusFilter != "" && t.Status != al.statusFilter {
			continue
		}
		groups[t.Status] = append(groups[t.Status], t)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			return g[i].StartedAt.After(g[j].StartedAt)
		})
	}

	sections := []struct {
		name   string
		status models.TaskStatus
	}{
		{"Running", models.TaskStatusRunning},
		{"Failed", models.TaskStatusFailed},
		{"Completed", models.TaskStatusCompleted},
	}

	var items []agentItem
	for _, sec := range sections {
		tasks := groups[sec.status]
		if len(tasks) == 0 {
			continue
		}
		items = append(items, agentItem{
			isHeader:  true,
			headerStr: fmt.Sprintf("%s (%d)", sec.name, len(tasks)),
		})
		for _, t := range tasks {
			items = append(items, agentItem{task: t})
		}
	}
	al.flatItems = items
}

// View renders the agent list.
func (al *AgentList) View(width int) string {
	if !al.loaded {
		return dimStyle.Render("Waiting for dashboard...")
	}
	if len(al.flatItems) == 0 {
		if al.statusFilter != "" {
			return dimStyle.Render(fmt.Sprintf("No %s agents.", al.statusFilter))
		}
		return dimStyle.Render("No agents yet. Spawn one through the MCP server.")
	}

	var lines []string
	end := len(al.flatItems)
	if al.height > 0 && al.scrollOffset+al.height < end {
		end = al.scrollOffset + al.height
	}

	for i := al.scrollOffset; i < end; i++ {
		item := al.flatItems[i]

		if item.isHeader {
			line := sectionHeaderStyle.Render(item.headerStr)
			if i > 0 {
				line = "\n" + line
			}
			lines = append(lines, line)
			continue
		}

		row := al.formatRow(item.task, width-2)
		if i == al.cursor {
			row = selectedItemStyle.Width(width).Render(row)
		}
		lines = append(lines, "  "+row)
	}

	if al.scrollOffset > 0 {
		lines = append([]string{dimStyle.Render("  ▲ more")}, lines...)
	}
	if end < len(al.flatItems) {
		lines = append(lines, dimStyle.Render("  ▼ more"))
	}

	return strings.Join(lines, "\n")
}

// formatRow renders "[badge] agent  description  duration" within width
// display cells.
func (al *AgentList) formatRow(t *models.AgentTask, width int) string {
	badge := al.statusBadge(t)
	name := runewidth.FillRight(runewidth.Truncate(t.Agent, agentColumnWidth, "…"), agentColumnWidth)
	elapsed := formatDuration(t.Duration())

	// badge(3) + spaces(3) + elapsed
	descWidth := width - 3 - agentColumnWidth - runewidth.StringWidth(elapsed) - 3
	desc := ""
	if descWidth > 0 {
		desc = runewidth.FillRight(runewidth.Truncate(firstLine(t.Description), descWidth, "…"), descWidth)
	}

	row := fmt.Sprintf("%s %s %s %s", badge, name, desc, dimStyle.Render(elapsed))
	if width > 0 {
		row = ansi.Truncate(row, width, "…")
	}
	return row
}

func (al *AgentList) statusBadge(t *models.AgentTask) string {
	switch t.Status {
	case models.TaskStatusRunning:
		frame := spinnerFrames[al.spinnerFrame%len(spinnerFrames)]
		return statusRunningStyle.Render("[" + frame + "]")
	case models.TaskStatusCompleted:
		return statusCompletedStyle.Render("[✓]")
	case models.TaskStatusFailed:
		return statusFailedStyle.Render("[✗]")
	}
	return "[ ]"
}

// Tick advances the spinner frame.
func (al *AgentList) Tick() {
	al.spinnerFrame = (al.spinnerFrame + 1) % len(spinnerFrames)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// statusLabel renders a status word in its status color.
func statusLabel(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusRunning:
		return statusRunningStyle.Render(string(s))
	case models.TaskStatusCompleted:
		return statusCompletedStyle.Render(string(s))
	case models.TaskStatusFailed:
		return statusFailedStyle.Render(string(s))
	}
	return lipgloss.NewStyle().Render(string(s))
}
