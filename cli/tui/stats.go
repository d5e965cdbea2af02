package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is the stats view's data payload, independent of the admin
// transport so the TUI package doesn't need to import core/admin.
type Snapshot struct {
	Idle, Active, Exited int
	QueueLength          int
	InputPPS, OutputPPS  float64
	TotalBlocked         uint64
	Modules              []string
	FetchedAt            time.Time
	FetchErr             error
}

const pollInterval = 2 * time.Second

type tickMsg time.Time

type fetchedMsg struct {
	snap Snapshot
}

// StatsModel is the Bubble Tea model for "radiusd stats --tui".
type StatsModel struct {
	fetch    func() (Snapshot, error)
	snap     Snapshot
	quitting bool
}

// NewStatsModel creates a model that calls fetch on each poll tick.
func NewStatsModel(fetch func() (Snapshot, error)) StatsModel {
	return StatsModel{fetch: fetch}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd())
}

func (m StatsModel) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetch()
		snap.FetchErr = err
		snap.FetchedAt = time.Now()
		return fetchedMsg{snap: snap}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())
	case fetchedMsg:
		m.snap = msg.snap
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var b string
	b += TitleStyle.Render("radiusd stats")
	b += "\n\n"

	if m.snap.FetchErr != nil {
		b += ErrorStyle.Render(fmt.Sprintf("fetch failed: %v", m.snap.FetchErr))
		b += "\n"
	} else {
		boxes := []string{
			m.statBox("Idle", m.snap.Idle, successColor),
			m.statBox("Active", m.snap.Active, warningColor),
			m.statBox("Exited", m.snap.Exited, mutedColor),
			m.statBox("Queued", m.snap.QueueLength, highlightColor),
		}
		b += lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
		b += "\n\n"
		b += fmt.Sprintf("%s %.1f   %s %.1f   %s %d\n",
			LabelStyle.Render("in pps:"), m.snap.InputPPS,
			LabelStyle.Render("out pps:"), m.snap.OutputPPS,
			LabelStyle.Render("blocked:"), m.snap.TotalBlocked)
		if len(m.snap.Modules) > 0 {
			b += fmt.Sprintf("%s %v\n", LabelStyle.Render("modules:"), m.snap.Modules)
		}
	}

	b += HelpStyle.Render("Press q or Ctrl+C to quit")
	return b
}

func (m StatsModel) statBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI in the alt screen until the user quits.
func RunStatsTUI(fetch func() (Snapshot, error)) error {
	p := tea.NewProgram(NewStatsModel(fetch), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
