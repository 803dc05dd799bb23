package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/watchfire-io/agentwatch/internal/client"
	"github.com/watchfire-io/agentwatch/internal/models"
)

// Model is the root Bubbletea model for the TUI.
type Model struct {
	client        *client.Client
	project       string
	connected     bool
	serverVersion string

	stats *models.Stats

	// UI state
	focusedPanel  int
	activeOverlay int
	width         int
	height        int
	err           error

	// Child components
	agentList  *AgentList
	transcript *TranscriptView

	// Program reference for goroutine Send()
	program *programRef

	// Streaming state. logCtx is derived from streamCtx so a disconnect
	// ends both streams.
	streamCtx    context.Context
	streamCancel context.CancelFunc
	logCancel    context.CancelFunc
	logBuf       *client.LogBuffer
	pendingOpen  string
	statsRunning bool
}

// NewModel creates the initial TUI model.
func NewModel(c *client.Client, opts Options, program *programRef) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		client:       c,
		project:      opts.Project,
		pendingOpen:  opts.TaskID,
		agentList:    NewAgentList(),
		transcript:   NewTranscriptView(),
		program:      program,
		streamCtx:    ctx,
		streamCancel: cancel,
	}
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(m.client),
		spinnerTick(),
	)
}

// Update processes messages and returns an updated model and commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	// ── Window resize ──────────────────────────────────────────────
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateDimensions()
		return m, nil

	// ── Input ──────────────────────────────────────────────────────
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	// ── Dashboard connection ───────────────────────────────────────
	case ConnectedMsg:
		m.connected = true
		m.serverVersion = msg.Version
		m.err = nil
		cmds := []tea.Cmd{
			subscribeAgentsCmd(m.streamCtx, m.client, m.project, m.program),
			loadStatsCmd(m.client),
		}
		if !m.statsRunning {
			m.statsRunning = true
			cmds = append(cmds, statsTick())
		}
		if task := m.openTaskRecord(); task != nil {
			cmds = append(cmds, m.openTask(task))
		}
		return m, tea.Batch(cmds...)

	case DisconnectedMsg:
		m.connected = false
		m.err = msg.Err
		m.resetStreams()
		return m, reconnectTick()

	case ReconnectMsg:
		if m.connected {
			return m, nil
		}
		return m, connectCmd(m.client)

	// ── Data ───────────────────────────────────────────────────────
	case AgentsMsg:
		m.agentList.SetTasks(msg.Tasks)
		if id := m.transcript.TaskID(); id != "" {
			m.transcript.UpdateTask(m.agentList.Task(id))
		}
		if m.pendingOpen != "" {
			task := m.agentList.Task(m.pendingOpen)
			if task == nil {
				task = &models.AgentTask{ID: m.pendingOpen}
			}
			m.pendingOpen = ""
			return m, m.openTask(task)
		}
		return m, nil

	case StatsMsg:
		m.stats = msg.Stats
		return m, nil

	case statsTickMsg:
		if !m.connected {
			return m, statsTick()
		}
		return m, tea.Batch(loadStatsCmd(m.client), statsTick())

	case LogFrameMsg:
		return m, m.applyFrame(msg)

	case LogDeltaMsg:
		return m, m.applyDelta(msg)

	case LogEndedMsg:
		if msg.TaskID == m.transcript.TaskID() {
			m.transcript.SetEnded(true)
		}
		return m, nil

	// ── Status ─────────────────────────────────────────────────────
	case ErrorMsg:
		m.err = msg.Err
		return m, clearErrorAfter(5 * time.Second)

	case ClearErrorMsg:
		if m.connected {
			m.err = nil
		}
		return m, nil

	case spinnerTickMsg:
		m.agentList.Tick()
		return m, spinnerTick()
	}

	return m, nil
}

// openTaskRecord returns the task whose transcript should be (re)opened
// after a connect.
func (m *Model) openTaskRecord() *models.AgentTask {
	id := m.transcript.TaskID()
	if id == "" {
		return nil
	}
	if t := m.agentList.Task(id); t != nil {
		return t
	}
	return &models.AgentTask{ID: id}
}

// openTask switches the transcript panel to task and starts its log stream.
func (m *Model) openTask(task *models.AgentTask) tea.Cmd {
	if m.logCancel != nil {
		m.logCancel()
	}
	ctx, cancel := context.WithCancel(m.streamCtx)
	m.logCancel = cancel
	m.logBuf = client.NewLogBuffer(task.ID)
	m.transcript.Open(task)
	m.focusedPanel = panelTranscript
	return subscribeLogCmd(ctx, m.client, task.ID, m.program)
}

func (m *Model) closeTask() {
	if m.logCancel != nil {
		m.logCancel()
		m.logCancel = nil
	}
	m.logBuf = nil
	m.transcript.Close()
	m.focusedPanel = panelAgents
}

func (m *Model) applyFrame(msg LogFrameMsg) tea.Cmd {
	if m.logBuf == nil || msg.TaskID != m.transcript.TaskID() {
		return nil
	}
	f := msg.Frame
	switch f.Type {
	case models.FrameKeepalive:
		return nil
	case models.FrameError:
		m.err = errors.New(f.Error)
		return clearErrorAfter(5 * time.Second)
	}

	changed, err := m.logBuf.Apply(f)
	if errors.Is(err, client.ErrGap) {
		return fetchLogDeltaCmd(m.client, msg.TaskID, m.logBuf.Len())
	}
	if err != nil {
		m.err = err
		return clearErrorAfter(5 * time.Second)
	}
	if changed {
		m.transcript.SetEvents(m.logBuf.Events())
	}
	return nil
}

func (m *Model) applyDelta(msg LogDeltaMsg) tea.Cmd {
	if m.logBuf == nil || msg.TaskID != m.transcript.TaskID() {
		return nil
	}
	d := msg.Delta
	if d.Size < m.logBuf.Len() {
		// The log shrank under us. Start over from the beginning.
		m.logBuf = client.NewLogBuffer(msg.TaskID)
		return fetchLogDeltaCmd(m.client, msg.TaskID, 0)
	}
	changed, err := m.logBuf.ApplyDelta(d)
	if err != nil {
		m.err = fmt.Errorf("log resync failed: %w", err)
		return clearErrorAfter(5 * time.Second)
	}
	if changed {
		m.transcript.SetEvents(m.logBuf.Events())
	}
	return nil
}

// resetStreams cancels every open stream and prepares a fresh context for
// the next connection. The open transcript stays selected.
func (m *Model) resetStreams() {
	m.streamCancel()
	m.logCancel = nil
	m.logBuf = nil
	m.streamCtx, m.streamCancel = context.WithCancel(context.Background())
}

func (m *Model) updateDimensions() {
	layout := computeLayout(m.width, m.height)
	m.agentList.SetHeight(layout.innerHeight())
	m.transcript.SetSize(layout.rightInner(), layout.innerHeight())
}

// ── Key handling ────────────────────────────────────────────────

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.activeOverlay != overlayNone {
		if key.Matches(msg, overlayKeys.Close) {
			m.activeOverlay = overlayNone
		}
		return nil
	}

	switch {
	case key.Matches(msg, globalKeys.Quit):
		return m.doQuit()
	case key.Matches(msg, globalKeys.Help):
		m.activeOverlay = overlayHelp
		return nil
	case key.Matches(msg, globalKeys.Tab):
		if m.focusedPanel == panelAgents {
			m.focusedPanel = panelTranscript
		} else {
			m.focusedPanel = panelAgents
		}
		return nil
	}

	if m.focusedPanel == panelAgents {
		return m.handleAgentListKey(msg)
	}
	return m.handleTranscriptKey(msg)
}

func (m *Model) handleAgentListKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, agentListKeys.Up):
		m.agentList.MoveUp()
	case key.Matches(msg, agentListKeys.Down):
		m.agentList.MoveDown()
	case key.Matches(msg, agentListKeys.Status):
		m.agentList.CycleStatusFilter()
	case key.Matches(msg, agentListKeys.Open):
		task := m.agentList.SelectedTask()
		if task == nil {
			return nil
		}
		if task.ID == m.transcript.TaskID() && m.logBuf != nil {
			m.focusedPanel = panelTranscript
			return nil
		}
		return m.openTask(task)
	}
	return nil
}

func (m *Model) handleTranscriptKey(msg tea.KeyMsg) tea.Cmd {
	tv := m.transcript
	switch {
	case key.Matches(msg, transcriptKeys.Back):
		m.closeTask()
	case key.Matches(msg, transcriptKeys.Up):
		tv.ScrollUp(1)
	case key.Matches(msg, transcriptKeys.Down):
		tv.ScrollDown(1)
	case key.Matches(msg, transcriptKeys.PgUp):
		tv.PageUp()
	case key.Matches(msg, transcriptKeys.PgDown):
		tv.PageDown()
	case key.Matches(msg, transcriptKeys.Top):
		tv.Top()
	case key.Matches(msg, transcriptKeys.Bottom):
		tv.Bottom()
	case key.Matches(msg, transcriptKeys.Follow):
		tv.ToggleFollow()
	case key.Matches(msg, transcriptKeys.Kind):
		tv.CycleKind()
	}
	return nil
}

func (m *Model) doQuit() tea.Cmd {
	m.streamCancel()
	m.program.Clear()
	return tea.Quit
}

// ── Mouse handling ───────────────────────────────────────────────

func (m *Model) handleMouse(msg tea.MouseMsg) {
	layout := computeLayout(m.width, m.height)
	inTranscript := msg.X >= layout.leftWidth

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if inTranscript {
			m.transcript.ScrollUp(3)
		} else {
			m.agentList.MoveUp()
		}
	case tea.MouseButtonWheelDown:
		if inTranscript {
			m.transcript.ScrollDown(3)
		} else {
			m.agentList.MoveDown()
		}
	case tea.MouseButtonLeft:
		if msg.Action != tea.MouseActionPress {
			return
		}
		if inTranscript {
			m.focusedPanel = panelTranscript
		} else {
			m.focusedPanel = panelAgents
		}
	}
}

// ── View ─────────────────────────────────────────────────────────

// View renders the whole screen.
func (m Model) View() string {
	if m.width < 80 || m.height < 24 {
		sizeStr := fmt.Sprintf("%dx%d", m.width, m.height)
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(colorYellow).
			Render(lipgloss.JoinVertical(lipgloss.Center,
				"Terminal too small",
				dimStyle.Render("Need 80x24, have "+lipgloss.NewStyle().Bold(true).Render(sizeStr)),
			))
	}

	if !m.connected && !m.agentList.loaded {
		status := "Connecting to dashboard..."
		if m.err != nil {
			status = "Dashboard unreachable, retrying...\n" + m.err.Error()
		}
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(colorDim).
			Render(status)
	}

	if m.activeOverlay == overlayHelp {
		return placeOverlay(renderHelp(m.width), m.width, m.height)
	}

	layout := computeLayout(m.width, m.height)
	header := renderHeader(&m, m.width)
	panels := renderPanels(
		m.agentList.View(layout.leftInner()),
		m.transcript.View(),
		layout,
		m.focusedPanel,
	)
	statusBar := renderStatusBar(&m, m.width)

	return lipgloss.JoinVertical(lipgloss.Left, header, panels, statusBar)
}
