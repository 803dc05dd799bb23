// Package tui implements the terminal dashboard for agentwatch.
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/watchfire-io/agentwatch/internal/client"
)

// programRef is a shared reference to the tea.Program for goroutine sends.
// It's set after tea.NewProgram but before p.Run().
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) Set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Clear nils out the program reference, preventing post-exit sends.
func (r *programRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// Options configures the dashboard view.
type Options struct {
	// Project limits the agent list to one project. Empty shows all.
	Project string

	// TaskID opens this task's transcript on start.
	TaskID string
}

// Run launches the terminal dashboard against a running dashboard server.
func Run(c *client.Client, opts Options) error {
	ref := &programRef{}
	model := NewModel(c, opts, ref)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	ref.Set(p)

	_, err := p.Run()
	return err
}
