// Package ics exports events as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/nhle/reminders/internal/model"
)

// ProductID identifies the exporter in PRODID.
const ProductID = "reminders"

// DefaultDuration is the length given to exported events, which carry
// only a start time.
const DefaultDuration = 30 * time.Minute

var frequencies = map[model.Recurrence]rrule.Frequency{
	model.RecurrenceDaily:   rrule.DAILY,
	model.RecurrenceWeekly:  rrule.WEEKLY,
	model.RecurrenceMonthly: rrule.MONTHLY,
}

// UID is the stable iCalendar identifier for a local event.
func UID(e model.Event) string {
	return fmt.Sprintf("event-%d@%s", e.ID, ProductID)
}

// RRule returns the RRULE value for a recurrence, or "" for NONE.
func RRule(r model.Recurrence) string {
	freq, ok := frequencies[r]
	if !ok {
		return ""
	}
	opt := rrule.ROption{Freq: freq, Interval: 1}
	return opt.RRuleString()
}

// Build renders events into a calendar. Dates and times are interpreted
// in loc. A recurring chain appears once per stored occurrence; only the
// latest pending occurrence of a chain carries the RRULE so calendar
// clients do not multiply it.
func Build(events []model.Event, loc *time.Location, stamp time.Time) (*ical.Calendar, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendarFor(ProductID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("Reminders")

	for _, e := range events {
		start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, e.Date+" "+e.Time, loc)
		if err != nil {
			return nil, fmt.Errorf("event %d has invalid date/time %q %q: %w", e.ID, e.Date, e.Time, err)
		}

		ev := cal.AddEvent(UID(e))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(DefaultDuration))
		ev.SetSummary(e.Name)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.LastModified > 0 {
			ev.SetModifiedAt(time.UnixMilli(e.LastModified))
		}
		if rule := RRule(e.Recurrence); rule != "" && carriesRule(e) {
			ev.AddRrule(rule)
		}
	}
	return cal, nil
}

// Write serializes events as an iCalendar document to w.
func Write(w io.Writer, events []model.Event, loc *time.Location, stamp time.Time) error {
	cal, err := Build(events, loc, stamp)
	if err != nil {
		return err
	}
	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("serializing calendar: %w", err)
	}
	return nil
}

// carriesRule reports whether e is the live head of its chain. Fired and
// rescheduled rows are history; their successor holds the rule.
func carriesRule(e model.Event) bool {
	switch e.AlarmState {
	case model.AlarmRescheduled, model.AlarmTerminated:
		return false
	default:
		return true
	}
}
