package eventlist

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/theme"
)

// EventItem wraps a model.Event so it can be used in a bubbles/list.
type EventItem struct {
	Event model.Event
}

// FilterValue returns the string used for fuzzy filtering.
func (i EventItem) FilterValue() string { return i.Event.Name }

// Title returns the event name for the list.
func (i EventItem) Title() string { return i.Event.Name }

// Description returns the event's schedule line.
func (i EventItem) Description() string {
	return fmt.Sprintf("%s %s %s", i.Event.Date, i.Event.Time, recurrenceLabel(i.Event.Recurrence))
}

// ItemDelegate renders one event per line.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ei, ok := item.(EventItem)
	if !ok {
		return
	}
	fmt.Fprint(w, renderLine(ei.Event, index == m.Index()))
}

func renderLine(e model.Event, selected bool) string {
	when := lipgloss.NewStyle().
		Foreground(theme.ColorBlue).
		Render(e.Date + " " + e.Time)

	repeat := ""
	if e.Recurrence.IsRecurring() {
		repeat = lipgloss.NewStyle().
			Foreground(theme.ColorMagenta).
			Render(" ↻ " + recurrenceLabel(e.Recurrence))
	}

	sync := theme.SyncStatusStyle(string(e.SyncStatus)).Render(syncBadge(e.SyncStatus))
	alarm := theme.AlarmStyle(string(e.AlarmState)).Render(alarmLabel(e.AlarmState))

	line := fmt.Sprintf("%s %s  %s%s  %s", sync, when, e.Name, repeat, alarm)

	if e.AlarmState == model.AlarmRescheduled || e.AlarmState == model.AlarmTerminated {
		line = theme.DimmedStyle.Render(line)
	}
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

func recurrenceLabel(r model.Recurrence) string {
	switch r {
	case model.RecurrenceDaily:
		return "daily"
	case model.RecurrenceWeekly:
		return "weekly"
	case model.RecurrenceMonthly:
		return "monthly"
	default:
		return "once"
	}
}

// syncBadge is a one-character sync marker: ✓ synced, ↑ waiting for
// upload, · local only.
func syncBadge(s model.SyncStatus) string {
	switch s {
	case model.SyncSynced:
		return "✓"
	case model.SyncPending:
		return "↑"
	default:
		return "·"
	}
}

func alarmLabel(s model.AlarmState) string {
	switch s {
	case model.AlarmArmed:
		return "armed"
	case model.AlarmPendingArm:
		return "arming"
	case model.AlarmFired:
		return "fired"
	case model.AlarmRescheduled:
		return "done"
	case model.AlarmTerminated:
		return "ended"
	default:
		return "no alarm"
	}
}
