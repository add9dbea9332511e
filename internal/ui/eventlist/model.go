package eventlist

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/reminders/internal/keys"
	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/store"
	"github.com/nhle/reminders/internal/theme"
)

// Loader is the store query the list runs.
type Loader interface {
	GetEvents(ctx context.Context, filter store.EventFilter) ([]model.Event, error)
}

// EventsLoadedMsg is sent when events have been loaded from the store.
type EventsLoadedMsg struct {
	Events []model.Event
	Err    error
}

// DeleteRequestMsg asks the parent to delete an event.
type DeleteRequestMsg struct {
	Event model.Event
}

// Model is the main event list view component.
type Model struct {
	list        list.Model
	loader      Loader
	keys        *keys.KeyMap
	filter      store.EventFilter
	todayOnly   bool
	loc         *time.Location
	now         func() time.Time
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a new event list model. Dates for the today filter are
// computed in loc.
func New(l Loader, k *keys.KeyMap, loc *time.Location, width, height int) Model {
	if loc == nil {
		loc = time.Local
	}
	lm := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	lm.Title = "Events"
	lm.SetShowStatusBar(true)
	lm.SetStatusBarItemName("event", "events")
	lm.SetShowHelp(false)
	lm.SetFilteringEnabled(false)
	lm.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search events..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        lm,
		loader:      l,
		keys:        k,
		loc:         loc,
		now:         time.Now,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns a command that loads the initial set of events.
func (m Model) Init() tea.Cmd {
	return m.LoadEvents()
}

// Update handles messages for the event list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventsLoadedMsg:
		if msg.Err != nil {
			return m, m.list.NewStatusMessage(theme.ErrorStyle.Render("load failed: " + msg.Err.Error()))
		}
		items := make([]list.Item, len(msg.Events))
		for i, e := range msg.Events {
			items[i] = EventItem{Event: e}
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		return m, m.SetQuery(m.searchInput.Value())

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.filter.Query = nil
		return m, m.LoadEvents()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Today):
		return m, m.SetTodayOnly(!m.todayOnly)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.LoadEvents()

	case key.Matches(msg, m.keys.Delete):
		e, ok := m.SelectedEvent()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return DeleteRequestMsg{Event: e} }
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SetTodayOnly switches between today's events and all events.
func (m *Model) SetTodayOnly(on bool) tea.Cmd {
	m.todayOnly = on
	if on {
		m.list.Title = "Today"
	} else {
		m.list.Title = "Events"
	}
	return m.LoadEvents()
}

// SetSyncFilter limits the list to rows with the given sync statuses; nil
// clears the filter.
func (m *Model) SetSyncFilter(statuses []model.SyncStatus) tea.Cmd {
	m.filter.SyncStatuses = statuses
	return m.LoadEvents()
}

// SetQuery applies a name/description search; an empty query clears it.
func (m *Model) SetQuery(query string) tea.Cmd {
	m.searchInput.SetValue(query)
	if query == "" {
		m.filter.Query = nil
	} else {
		m.filter.Query = &query
	}
	return m.LoadEvents()
}

// ClearFilters resets search, today and sync filters.
func (m *Model) ClearFilters() tea.Cmd {
	m.filter = store.EventFilter{}
	m.searchInput.Reset()
	return m.SetTodayOnly(false)
}

// TodayOnly reports whether the today filter is on.
func (m Model) TodayOnly() bool {
	return m.todayOnly
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// SelectedEvent returns the focused event.
func (m Model) SelectedEvent() (model.Event, bool) {
	item, ok := m.list.SelectedItem().(EventItem)
	if !ok {
		return model.Event{}, false
	}
	return item.Event, true
}

// Len returns the number of listed events.
func (m Model) Len() int {
	return len(m.list.Items())
}

// View renders the event list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no events are listed.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.filter.Query != nil || len(m.filter.SyncStatuses) > 0:
		return style.Render("No matching events.\nPress : then 'all' to clear filters.")
	case m.todayOnly:
		return style.Render("Nothing scheduled today.")
	default:
		return style.Render("No events yet.\n\nPress n to add one.")
	}
}

// LoadEvents returns a tea.Cmd that queries the store with the current
// filter.
func (m Model) LoadEvents() tea.Cmd {
	filter := m.filter
	if m.todayOnly {
		today := m.now().In(m.loc).Format(model.DateLayout)
		filter.Date = &today
	}
	l := m.loader
	return func() tea.Msg {
		events, err := l.GetEvents(context.Background(), filter)
		return EventsLoadedMsg{Events: events, Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
