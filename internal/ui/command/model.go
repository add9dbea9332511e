package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/reminders/internal/theme"
)

// Spec describes one palette command.
type Spec struct {
	Name  string
	Usage string
}

// Commands lists what the palette accepts, in help order.
var Commands = []Spec{
	{Name: "sync", Usage: "run a sync pass now"},
	{Name: "new", Usage: "create an event"},
	{Name: "today", Usage: "show only today's events"},
	{Name: "all", Usage: "clear filters and show every event"},
	{Name: "unsynced", Usage: "show events waiting for upload"},
	{Name: "search", Usage: "search <text> in names and descriptions"},
	{Name: "read", Usage: "mark notifications read"},
	{Name: "quit", Usage: "exit"},
}

// CommandMsg is emitted when the user executes a command line.
type CommandMsg struct {
	Name string
	// Arg is the rest of the line after the command name.
	Arg string
}

// CancelMsg is emitted when the user leaves the palette with esc.
type CancelMsg struct{}

// Parse splits a palette line into a lower-cased command name and its
// argument. It reports false for a blank line.
func Parse(line string) (CommandMsg, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return CommandMsg{}, false
	}
	name, arg, _ := strings.Cut(line, " ")
	return CommandMsg{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}, true
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = c.Name
	}

	ti := textinput.New()
	ti.Placeholder = strings.Join(names, ", ")
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(names)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			parsed, ok := Parse(m.input.Value())
			m.input.Reset()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return parsed }
		case "esc":
			m.input.Reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command")

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.input.View()))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
