package help

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/reminders/internal/keys"
	"github.com/nhle/reminders/internal/theme"
	"github.com/nhle/reminders/internal/ui/command"
)

// Status is the sync and notification summary shown under the shortcuts.
type Status struct {
	Sync string
	// LastResult is the summary of the most recent pass, if any.
	LastResult string
	Unread     int
}

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	status Status
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	var commands []string
	for _, c := range command.Commands {
		commands = append(commands, theme.DimmedStyle.Render(fmt.Sprintf("  %-10s %s", c.Name, c.Usage)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Commands (:)"),
		lipgloss.JoinVertical(lipgloss.Left, commands...),
		"",
		titleStyle.Render("Status"),
		m.renderStatus(),
	)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

func (m Model) renderStatus() string {
	lines := []string{
		fmt.Sprintf("  Sync           %s", m.status.Sync),
	}
	if m.status.LastResult != "" {
		lines = append(lines, fmt.Sprintf("  Last pass      %s", m.status.LastResult))
	}
	lines = append(lines, fmt.Sprintf("  Unread         %d", m.status.Unread))
	for i, l := range lines {
		lines[i] = theme.DimmedStyle.Render(l)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// SetStatus replaces the status summary.
func (m *Model) SetStatus(s Status) {
	m.status = s
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
