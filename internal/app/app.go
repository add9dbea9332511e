package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/reminders/internal/keys"
	"github.com/nhle/reminders/internal/model"
	appsync "github.com/nhle/reminders/internal/sync"
	"github.com/nhle/reminders/internal/theme"
	"github.com/nhle/reminders/internal/ui"
	"github.com/nhle/reminders/internal/ui/command"
	"github.com/nhle/reminders/internal/ui/eventform"
	"github.com/nhle/reminders/internal/ui/eventlist"
	helpview "github.com/nhle/reminders/internal/ui/help"
)

// Store is the part of the event store the TUI reads and writes directly.
type Store interface {
	eventlist.Loader
	DeleteEvent(ctx context.Context, id int64) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Scheduler persists new events and arms their alarms.
type Scheduler interface {
	Schedule(ctx context.Context, ev model.Event) (*model.Event, error)
}

// Syncer is the sync engine as seen by the TUI.
type Syncer interface {
	SyncCmd() tea.Cmd
	WaitForResult() tea.Cmd
	LastSync(ctx context.Context) (time.Time, bool, error)
}

// Options wires the TUI to the application services.
type Options struct {
	Store     Store
	Scheduler Scheduler
	// Sync is nil when sync is disabled.
	Sync     Syncer
	Location *time.Location
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewHelp
	ViewCommand
	ViewCreate
)

// Model is the root Bubble Tea model that manages view routing,
// layout, and access to the services.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	store     Store
	scheduler Scheduler
	sync      Syncer

	eventList   eventlist.Model
	eventForm   eventform.Model
	helpView    helpview.Model
	commandView command.Model

	ready       bool
	unreadCount int
	syncing     bool
	lastSync    time.Time
	lastResult  *appsync.Result
	notice      string
	noticeErr   bool
	now         func() time.Time
}

// New creates a new root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return Model{
		currentView: ViewList,
		keys:        k,
		store:       opts.Store,
		scheduler:   opts.Scheduler,
		sync:        opts.Sync,
		eventList:   eventlist.New(opts.Store, k, loc, 80, 24),
		eventForm:   eventform.New(loc, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		syncing:     opts.Sync != nil, // Init starts a pass
		now:         time.Now,
	}
}

// Init loads events and notifications and, when sync is enabled, starts
// a pass and begins listening for results.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.eventList.Init(),
		m.fetchUnreadCount(),
	}
	if m.sync != nil {
		cmds = append(cmds,
			m.fetchLastSync(),
			m.sync.WaitForResult(),
			m.sync.SyncCmd(),
		)
	}
	return tea.Batch(cmds...)
}

// Syncing reports whether a pass requested from the TUI is outstanding.
func (m Model) Syncing() bool {
	return m.syncing
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.eventList.SetSize(contentWidth, contentHeight)
		m.eventForm.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case eventlist.EventsLoadedMsg:
		// Loads can finish while another view is open.
		var cmd tea.Cmd
		m.eventList, cmd = m.eventList.Update(msg)
		return m, cmd

	case appsync.ResultMsg:
		res := msg.Result
		m.syncing = false
		m.lastResult = &res
		m.setNotice(res.Summary(), !res.OK())
		if res.AuthFailed {
			m.setNotice("Remote rejected credentials: run 'reminders login'", true)
		}
		return m, tea.Batch(
			m.eventList.LoadEvents(),
			m.fetchUnreadCount(),
			m.fetchLastSync(),
			m.sync.WaitForResult(),
		)

	case lastSyncMsg:
		m.lastSync = msg.at
		return m, nil

	case unreadCountMsg:
		m.unreadCount = msg.count
		return m, nil

	case notificationsReadMsg:
		if msg.err != nil {
			m.setNotice("Marking notifications read failed: "+msg.err.Error(), true)
		} else {
			m.setNotice(fmt.Sprintf("Marked %d notifications read", msg.count), false)
		}
		return m, m.fetchUnreadCount()

	case eventform.SubmitMsg:
		m.currentView = ViewList
		return m, m.scheduleEvent(msg.Event)

	case eventform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case eventSavedMsg:
		if msg.err != nil {
			m.setNotice("Saving event failed: "+msg.err.Error(), true)
			return m, nil
		}
		m.setNotice(fmt.Sprintf("Scheduled %q for %s %s", msg.event.Name, msg.event.Date, msg.event.Time), false)
		return m, m.eventList.LoadEvents()

	case eventlist.DeleteRequestMsg:
		return m, m.deleteEvent(msg.Event)

	case eventDeletedMsg:
		if msg.err != nil {
			m.setNotice("Deleting event failed: "+msg.err.Error(), true)
			return m, nil
		}
		m.setNotice(fmt.Sprintf("Deleted %q", msg.name), false)
		return m, m.eventList.LoadEvents()

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		// Forms and the search input own every other key.
		if m.currentView == ViewCreate || (m.currentView == ViewList && m.eventList.Searching()) {
			break
		}
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work outside forms and inputs.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		if m.currentView == ViewList {
			m.previousView = m.currentView
			m.currentView = ViewHelp
			m.helpView.SetStatus(m.helpStatus())
			return nil, true
		}

	case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
		m.currentView = m.previousView
		return nil, true

	case m.currentView != ViewList:
		return nil, false

	case key.Matches(msg, m.keys.Quit):
		return tea.Quit, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.New):
		m.previousView = m.currentView
		m.currentView = ViewCreate
		return m.eventForm.Start(), true

	case key.Matches(msg, m.keys.Sync):
		return m.requestSync(), true

	case key.Matches(msg, m.keys.MarkRead):
		return m.markNotificationsRead(), true
	}
	return nil, false
}

// requestSync queues a pass unless one requested here is still running.
func (m *Model) requestSync() tea.Cmd {
	if m.sync == nil {
		m.setNotice("Sync is disabled: set remote.base_url in the config", true)
		return nil
	}
	if m.syncing {
		return nil
	}
	m.syncing = true
	m.notice = ""
	return m.sync.SyncCmd()
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.eventList, cmd = m.eventList.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewCreate:
		m.eventForm, cmd = m.eventForm.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := "Reminders"
	if m.unreadCount > 0 {
		headerTitle = fmt.Sprintf("Reminders [%d new]", m.unreadCount)
	}
	header := m.layout.RenderHeader(headerTitle, m.syncStatus())
	content := m.renderContent()

	notice := m.notice
	if notice != "" && m.noticeErr {
		notice = theme.ErrorStyle.Render(notice)
	}
	statusBar := m.layout.RenderStatusBar(m.keyHints(), notice)

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.eventList.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewCreate:
		return m.eventForm.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the sync state.
func (m Model) syncStatus() string {
	switch {
	case m.sync == nil:
		return "sync off"
	case m.syncing:
		return "syncing…"
	case m.lastResult != nil && m.lastResult.Status == appsync.StatusFailed:
		return "⚠ sync failed"
	case m.lastSync.IsZero():
		return "never synced"
	default:
		return "synced " + ui.RelativeTime(m.lastSync, m.now())
	}
}

// helpStatus summarizes sync and notification state for the help overlay.
func (m Model) helpStatus() helpview.Status {
	st := helpview.Status{Sync: m.syncStatus(), Unread: m.unreadCount}
	if m.lastResult != nil {
		st.LastResult = m.lastResult.Summary()
	}
	return st
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewCreate:
		return "enter next | esc cancel"
	default:
		if m.eventList.TodayOnly() {
			return "t all events | n new | s sync | / search | ? help"
		}
		return "q quit | ? help | n new | d delete | t today | s sync | / search"
	}
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(cmd command.CommandMsg) tea.Cmd {
	switch cmd.Name {
	case "sync", "refresh":
		return m.requestSync()
	case "today":
		return m.eventList.SetTodayOnly(true)
	case "all", "clear":
		return m.eventList.ClearFilters()
	case "search", "find":
		return m.eventList.SetQuery(cmd.Arg)
	case "unsynced":
		return m.eventList.SetSyncFilter([]model.SyncStatus{model.SyncPending, model.SyncLocalOnly})
	case "read":
		return m.markNotificationsRead()
	case "new", "add":
		m.previousView = ViewList
		m.currentView = ViewCreate
		return m.eventForm.Start()
	case "quit", "q":
		return tea.Quit
	default:
		m.setNotice(fmt.Sprintf("Unknown command %q", cmd.Name), true)
		return nil
	}
}
