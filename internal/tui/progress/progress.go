// Package progress shows a live view of a pipeline run.
package progress

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Digital-Shane/title-resolve/internal/pipeline"
	"github.com/Digital-Shane/title-resolve/internal/tui/theme"
)

// Lines taken by everything except the problem list.
const baseLines = 8

// Source produces pipeline events. *pipeline.Engine implements it.
type Source interface {
	Start(ctx context.Context) <-chan pipeline.Event
}

type eventMsg struct {
	event pipeline.Event
	done  bool
}

// Model renders progress while a pipeline run is in flight. It quits once
// the run has finished, including after the user canceled it.
type Model struct {
	source Source
	events <-chan pipeline.Event
	ctx    context.Context
	cancel context.CancelFunc

	summary  pipeline.Summary
	problems []pipeline.Result

	theme    theme.Theme
	progress progress.Model
	width    int
	height   int

	canceling bool
	done      bool
}

// New returns a model that starts src when the program initializes. The
// run is bound to ctx.
func New(ctx context.Context, src Source, th theme.Theme) *Model {
	from, to := th.ProgressGradient()
	bar := progress.New(progress.WithGradient(from, to))
	bar.Width = 50

	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		source:   src,
		ctx:      ctx,
		cancel:   cancel,
		theme:    th,
		progress: bar,
		width:    80,
		height:   16,
	}
}

func (m *Model) Init() tea.Cmd {
	m.events = m.source.Start(m.ctx)
	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventMsg{done: true}
		}
		return eventMsg{event: ev}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = max(msg.Width-4, 10)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			// Keep draining so the engine can deliver its final event.
			m.canceling = true
			m.cancel()
		}
		return m, nil
	case eventMsg:
		return m.handleEvent(msg)
	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleEvent(msg eventMsg) (tea.Model, tea.Cmd) {
	if msg.done {
		m.finish()
		return m, tea.Quit
	}

	m.summary = msg.event.Summary
	if r := msg.event.Result; r != nil && !r.Resolved() && r.State != pipeline.StateSkipped {
		m.problems = append(m.problems, *r)
	}

	ratio := 0.0
	if m.summary.Total > 0 {
		ratio = float64(m.summary.Processed) / float64(m.summary.Total)
	}
	cmd := m.progress.SetPercent(ratio)

	if m.summary.Done {
		m.finish()
		return m, tea.Batch(cmd, tea.Quit)
	}
	return m, tea.Batch(cmd, m.waitForEvent())
}

func (m *Model) finish() {
	m.done = true
	m.cancel()
}

// Summary returns the last summary received.
func (m *Model) Summary() pipeline.Summary {
	return m.summary
}

// Canceled reports whether the user stopped the run early.
func (m *Model) Canceled() bool {
	return m.canceling || m.summary.Canceled
}

func (m *Model) View() string {
	if m.summary.Total == 0 && m.done {
		return "No files to resolve.\n"
	}

	header := fmt.Sprintf("Resolving %d files", m.summary.Total)
	if m.canceling {
		header = "Canceling, waiting for running lookups"
	}

	percent := 0
	if m.summary.Total > 0 {
		percent = 100 * m.summary.Processed / m.summary.Total
	}
	counts := strings.Join([]string{
		m.theme.TextStyle(theme.BadgeSuccess).Render(fmt.Sprintf("%s resolved %d", m.theme.Icon("resolved"), m.summary.Resolved)),
		m.theme.TextStyle(theme.BadgeError).Render(fmt.Sprintf("%s unresolved %d", m.theme.Icon("failed"), m.summary.Failed)),
		m.theme.TextStyle(theme.BadgeMuted).Render(fmt.Sprintf("%s skipped %d", m.theme.Icon("skipped"), m.summary.Skipped)),
	}, "  ")

	stats := fmt.Sprintf("%s %d/%d files (%d%%), %d workers",
		m.theme.Icon("stats"), m.summary.Processed, m.summary.Total, percent, m.summary.WorkerLimit)

	sections := []string{
		m.theme.HeaderStyle().Width(m.width).Render(header),
		m.progress.View(),
		stats,
		counts,
	}
	if panel := m.renderProblems(); panel != "" {
		sections = append(sections, panel)
	}

	status := "Looking up titles..."
	if m.summary.LastItem != "" {
		status = m.summary.LastItem
	}
	status = runewidth.Truncate(status, max(m.width-2, 10), "…")
	sections = append(sections, m.theme.StatusBarStyle().Width(m.width).Render(status))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderProblems lists the newest unresolved files that fit the window.
func (m *Model) renderProblems() string {
	if len(m.problems) == 0 {
		return ""
	}

	panel := m.theme.PanelStyle()
	inner := max(m.width-panel.GetHorizontalFrameSize(), 20)
	room := max(m.height-baseLines-panel.GetVerticalFrameSize(), 1)

	shown := m.problems[max(len(m.problems)-room, 0):]
	lines := make([]string, 0, len(shown)+1)
	if hidden := len(m.problems) - len(shown); hidden > 0 {
		lines = append(lines, fmt.Sprintf("... %d earlier", hidden))
	}
	for _, r := range shown {
		line := fmt.Sprintf("%s %s: %s", m.theme.Icon(string(r.State)), filepath.Base(r.Path), r.Kind)
		if r.Reason != "" {
			line += " (" + r.Reason + ")"
		}
		lines = append(lines, runewidth.Truncate(line, inner, "…"))
	}

	return panel.Width(inner).Render(m.theme.TextStyle(theme.BadgeError).Render(strings.Join(lines, "\n")))
}

// Run shows the model for src until the run ends and reports whether the
// user canceled it.
func Run(ctx context.Context, src Source, th theme.Theme, opts ...tea.ProgramOption) (bool, error) {
	m := New(ctx, src, th)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		m.cancel()
		if m.events != nil {
			go func() {
				for range m.events {
				}
			}()
		}
		return false, fmt.Errorf("progress view: %w", err)
	}
	return final.(*Model).Canceled(), nil
}
