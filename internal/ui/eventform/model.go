package eventform

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/recurrence"
	"github.com/nhle/reminders/internal/theme"
)

// SubmitMsg is dispatched when the user submits a valid event.
type SubmitMsg struct {
	Event model.Event
}

// CancelMsg is dispatched when the user cancels the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	name        string
	date        string
	time        string
	description string
	recurrence  model.Recurrence
}

// Model is the Bubble Tea model for the new-event form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	loc    *time.Location
	now    func() time.Time
	width  int
	height int
}

// New creates a new event form model. The date field defaults to today
// in loc.
func New(loc *time.Location, width, height int) Model {
	if loc == nil {
		loc = time.Local
	}
	return Model{
		fb:     &formBindings{recurrence: model.RecurrenceNone},
		loc:    loc,
		now:    time.Now,
		width:  width,
		height: height,
	}
}

// Start resets the fields and builds a fresh form.
func (m *Model) Start() tea.Cmd {
	*m.fb = formBindings{
		date:       m.now().In(m.loc).Format(model.DateLayout),
		recurrence: model.RecurrenceNone,
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the event form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		ev := m.Event()
		m.form = nil
		return m, func() tea.Msg { return SubmitMsg{Event: ev} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// Event builds the event described by the current field values.
func (m Model) Event() model.Event {
	return model.Event{
		Name:        strings.TrimSpace(m.fb.name),
		Date:        strings.TrimSpace(m.fb.date),
		Time:        strings.TrimSpace(m.fb.time),
		Description: strings.TrimSpace(m.fb.description),
		Recurrence:  m.fb.recurrence,
	}
}

// View renders the event form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("New Event") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("What should we remind you about?").
				Value(&m.fb.name).
				Validate(validateRequired("Name")),
			huh.NewInput().
				Title("Date").
				Placeholder("YYYY-MM-DD").
				Value(&m.fb.date).
				Validate(validateDate),
			huh.NewInput().
				Title("Time").
				Placeholder("HH:MM (24h)").
				Value(&m.fb.time).
				Validate(validateClock),
			huh.NewText().
				Title("Description").
				Placeholder("Optional details...").
				Value(&m.fb.description),
			huh.NewSelect[model.Recurrence]().
				Title("Repeat").
				Options(
					huh.NewOption("Once", model.RecurrenceNone),
					huh.NewOption("Daily", model.RecurrenceDaily),
					huh.NewOption("Weekly", model.RecurrenceWeekly),
					huh.NewOption("Monthly", model.RecurrenceMonthly),
				).
				Value(&m.fb.recurrence),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateDate(s string) error {
	if _, err := time.Parse(model.DateLayout, strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid date, use YYYY-MM-DD")
	}
	return nil
}

func validateClock(s string) error {
	if _, _, err := recurrence.ParseClock(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid time, use HH:MM (00:00-23:59)")
	}
	return nil
}
