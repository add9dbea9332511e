package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/reminders/internal/model"
)

// eventSavedMsg is sent after a new event is persisted and armed.
type eventSavedMsg struct {
	event *model.Event
	err   error
}

// eventDeletedMsg is sent after an event is deleted.
type eventDeletedMsg struct {
	name string
	err  error
}

// unreadCountMsg carries the number of unread notifications to the UI.
type unreadCountMsg struct {
	count int
}

// notificationsReadMsg is sent after unread notifications are marked read.
type notificationsReadMsg struct {
	count int
	err   error
}

// lastSyncMsg carries the last successful sync time; zero means never.
type lastSyncMsg struct {
	at time.Time
}

// scheduleEvent persists ev and arms its first alarm.
func (m Model) scheduleEvent(ev model.Event) tea.Cmd {
	sched := m.scheduler
	return func() tea.Msg {
		saved, err := sched.Schedule(context.Background(), ev)
		return eventSavedMsg{event: saved, err: err}
	}
}

// deleteEvent removes an event row. An armed timer is left in place; it
// finds no row when it fires and is dropped.
func (m Model) deleteEvent(ev model.Event) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		err := s.DeleteEvent(context.Background(), ev.ID)
		return eventDeletedMsg{name: ev.Name, err: err}
	}
}

// fetchUnreadCount returns a tea.Cmd that queries the store for the
// number of unread notifications.
func (m Model) fetchUnreadCount() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		notifications, err := s.GetUnreadNotifications(context.Background())
		if err != nil {
			return unreadCountMsg{count: 0}
		}
		return unreadCountMsg{count: len(notifications)}
	}
}

// markNotificationsRead marks every unread notification read.
func (m Model) markNotificationsRead() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()
		notifications, err := s.GetUnreadNotifications(ctx)
		if err != nil {
			return notificationsReadMsg{err: err}
		}
		for _, n := range notifications {
			if err := s.MarkNotificationRead(ctx, n.ID); err != nil {
				return notificationsReadMsg{err: err}
			}
		}
		return notificationsReadMsg{count: len(notifications)}
	}
}

// fetchLastSync reads the last successful sync time.
func (m Model) fetchLastSync() tea.Cmd {
	if m.sync == nil {
		return nil
	}
	syncer := m.sync
	return func() tea.Msg {
		at, ok, err := syncer.LastSync(context.Background())
		if err != nil || !ok {
			return lastSyncMsg{}
		}
		return lastSyncMsg{at: at}
	}
}
