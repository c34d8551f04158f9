package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/cartload/internal/stresstest"
	"github.com/studiowebux/cartload/internal/types"
)

// RefreshInterval is how often the view polls the executor
const RefreshInterval = 250 * time.Millisecond

const maxBarWidth = 60

// Source is the read side of a running load test
type Source interface {
	GetStats() *stresstest.Stats
	GetOperationStats() map[types.Operation]*stresstest.Stats
	PoolSize() int
	ActiveUsers() int
	Elapsed() time.Duration
	Config() *stresstest.Config
	Stop()
}

type tickMsg time.Time

type stoppedMsg struct{}

// Model is the bubbletea model of the progress view
type Model struct {
	source   Source
	done     <-chan struct{}
	bar      progress.Model
	width    int
	stopping bool
	finished bool

	// Snapshot refreshed on every tick
	stats   *stresstest.Stats
	opStats map[types.Operation]*stresstest.Stats
	pool    int
	users   int
	elapsed time.Duration
}

// New creates the progress view. done must be closed once the run is finalized.
func New(source Source, done <-chan struct{}) Model {
	m := Model{
		source: source,
		done:   done,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	m.refresh()
	return m
}

// Run shows the progress view until done is closed
func Run(source Source, done <-chan struct{}, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(New(source, done), opts...).Run()
	return err
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts polling
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles ticks, resizes and stop keys
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.stopping || m.finished {
				return m, nil
			}
			m.stopping = true
			source := m.source
			return m, func() tea.Msg {
				source.Stop()
				return stoppedMsg{}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 10
		if w > maxBarWidth {
			w = maxBarWidth
		}
		if w > 10 {
			m.bar.Width = w
		}

	case tickMsg, stoppedMsg:
		m.refresh()
		select {
		case <-m.done:
			m.finished = true
			return m, tea.Quit
		default:
		}
		if _, ok := msg.(tickMsg); ok {
			return m, tick()
		}
	}
	return m, nil
}

func (m *Model) refresh() {
	m.stats = m.source.GetStats()
	m.opStats = m.source.GetOperationStats()
	m.pool = m.source.PoolSize()
	m.users = m.source.ActiveUsers()
	m.elapsed = m.source.Elapsed()
}

// Fraction returns the run progress between 0 and 1: completed requests for
// iteration-bounded runs, elapsed time otherwise
func (m Model) Fraction() float64 {
	config := m.source.Config()
	var f float64
	switch {
	case m.finished:
		f = 1
	case m.stats.TotalRequests > 0:
		f = float64(m.stats.CompletedRequests) / float64(m.stats.TotalRequests)
	case config.GetTestDuration() > 0:
		f = m.elapsed.Seconds() / config.GetTestDuration().Seconds()
	}
	if f > 1 {
		f = 1
	}
	return f
}

// View renders the progress view
func (m Model) View() string {
	config := m.source.Config()
	var content strings.Builder

	title := "Load Test - Running"
	switch {
	case m.finished:
		title = "Load Test - Finished"
	case m.stopping:
		title = "Load Test - Stopping"
	}
	content.WriteString(styleTitle.Render(title) + "\n")
	content.WriteString(styleSubtle.Render(fmt.Sprintf("%s  %s  %d users", config.Backend, config.Host, config.Users)) + "\n\n")

	content.WriteString(m.bar.ViewAs(m.Fraction()) + "\n")
	if m.stats.TotalRequests > 0 {
		content.WriteString(fmt.Sprintf("%d/%d requests\n", m.stats.CompletedRequests, m.stats.TotalRequests))
	} else {
		content.WriteString(fmt.Sprintf("%d requests\n", m.stats.CompletedRequests))
	}
	elapsed := formatDuration(m.elapsed)
	if d := config.GetTestDuration(); d > 0 {
		elapsed += " / " + formatDuration(d)
	}
	content.WriteString(fmt.Sprintf("Elapsed: %s   Active Users: %d   Carts: %d\n\n", elapsed, m.users, m.pool))

	content.WriteString(m.renderTable())

	rps := m.stats.RequestsPerSecond(m.elapsed)
	failures := fmt.Sprintf("%.1f%% failed", m.stats.FailureRate())
	if m.stats.FailureRate() > 0 {
		failures = styleError.Render(failures)
	} else {
		failures = styleSuccess.Render(failures)
	}
	content.WriteString(fmt.Sprintf("\nRequests/sec: %.2f   %s\n\n", rps, failures))

	footer := "ESC/q: Stop test"
	if m.stopping && !m.finished {
		footer = styleWarning.Render(fmt.Sprintf("Waiting for %d active users to finish...", m.users))
	} else {
		footer = styleSubtle.Render(footer)
	}
	content.WriteString(footer)

	box := styleBox
	if m.width > 0 {
		w := m.width - 4
		if w > 90 {
			w = 90
		}
		box = box.Width(w)
	}
	return box.Render(content.String()) + "\n"
}

func (m Model) renderTable() string {
	rows := []string{
		styleHeader.Render(fmt.Sprintf("%-20s %8s %8s %8s %8s %8s", "Operation", "Reqs", "Fails", "P50", "P95", "P99")),
	}
	for _, op := range types.Operations {
		s, ok := m.opStats[op]
		if !ok {
			s = stresstest.NewStats()
		}
		rows = append(rows, fmt.Sprintf("%-20s %8d %8d %6dms %6dms %6dms",
			op, s.CompletedRequests, s.ErrorCount+s.ValidationErrorCount, s.P50(), s.P95(), s.P99()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n"
}
