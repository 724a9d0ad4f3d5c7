package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/timmy/sprintreport/internal/domain"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00BFFF"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD93D"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
)

type statusMsg struct {
	view *domain.StatusView
	err  error
}

type pollMsg struct{}

// watchModel polls a job until it parks for approval or finishes.
type watchModel struct {
	client   *client
	jobID    string
	interval time.Duration

	spinner spinner.Model
	view    *domain.StatusView
	err     error
	done    bool
}

func newWatchModel(c *client, jobID string, interval time.Duration) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return watchModel{client: c, jobID: jobID, interval: interval, spinner: s}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		view, err := m.client.status(ctx, m.jobID)
		return statusMsg{view: view, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		m.view = msg.view
		if settled(msg.view.Status) {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
	case pollMsg:
		return m, m.fetch()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sprint report job "+m.jobID) + "\n\n")
	if m.err != nil {
		b.WriteString(errStyle.Render("Error: "+m.err.Error()) + "\n")
		return b.String()
	}
	if m.view == nil {
		b.WriteString(m.spinner.View() + " connecting...\n")
		return b.String()
	}
	if !m.done {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(renderStatus(m.view) + "\n")
	if !m.done {
		b.WriteString(statusStyle.Render("press q to stop watching") + "\n")
	}
	return b.String()
}

// settled reports whether watching can stop.
func settled(s domain.JobStatus) bool {
	return s.IsTerminal() || s == domain.JobStatusAwaitingApproval
}

func renderStatus(v *domain.StatusView) string {
	line := fmt.Sprintf("%-18s %s %3d%%", v.Status, progressBar(v.Progress, 20), v.Progress)
	switch {
	case v.Status == domain.JobStatusCompleted || v.Status == domain.JobStatusApproved:
		line = okStyle.Render(line)
	case v.Status == domain.JobStatusAwaitingApproval:
		line = warnStyle.Render(line) + "\n" + statusStyle.Render("waiting for a decision: sprintctl approve "+v.JobID)
	case v.Error != nil:
		line = errStyle.Render(line) + "\n" + statusStyle.Render(fmt.Sprintf("%s: %s", v.Error.Kind, v.Error.Message))
	}
	if v.SprintName != "" {
		line = statusStyle.Render(v.SprintName) + "\n" + line
	}
	if p := v.Provenance; p != nil && p.Degraded > 0 {
		line += "\n" + warnStyle.Render(fmt.Sprintf("%d of %d meetings had no notes", p.Degraded, p.MeetingsTotal))
	}
	return line
}

func progressBar(progress, width int) string {
	filled := progress * width / 100
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
