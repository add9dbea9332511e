package model

import (
	"fmt"
	"strings"
)

// Recurrence controls whether firing an occurrence produces a successor.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "NONE"
	RecurrenceDaily   Recurrence = "DAILY"
	RecurrenceWeekly  Recurrence = "WEEKLY"
	RecurrenceMonthly Recurrence = "MONTHLY"
)

// ParseRecurrence normalizes a user- or wire-supplied recurrence name.
// The empty string maps to RecurrenceNone.
func ParseRecurrence(s string) (Recurrence, error) {
	switch r := Recurrence(strings.ToUpper(strings.TrimSpace(s))); r {
	case "":
		return RecurrenceNone, nil
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return r, nil
	default:
		return RecurrenceNone, fmt.Errorf("unknown recurrence type %q", s)
	}
}

// IsRecurring reports whether r generates successors.
func (r Recurrence) IsRecurring() bool {
	return r == RecurrenceDaily || r == RecurrenceWeekly || r == RecurrenceMonthly
}

// SyncStatus is the sync lifecycle state of a local row.
type SyncStatus string

const (
	// SyncPending rows were created locally and not yet uploaded.
	SyncPending SyncStatus = "PENDING"
	// SyncSynced rows carry a confirmed remote id.
	SyncSynced SyncStatus = "SYNCED"
	// SyncLocalOnly rows predate sync support.
	SyncLocalOnly SyncStatus = "LOCAL_ONLY"
)

// AlarmState tracks where a row is in the timer chain.
//
//	PENDING_ARM -> ARMED -> FIRED -> RESCHEDULED | TERMINATED
//
// Rows imported from the remote are UNSCHEDULED and never armed.
type AlarmState string

const (
	AlarmPendingArm  AlarmState = "PENDING_ARM"
	AlarmArmed       AlarmState = "ARMED"
	AlarmFired       AlarmState = "FIRED"
	AlarmRescheduled AlarmState = "RESCHEDULED"
	AlarmTerminated  AlarmState = "TERMINATED"
	AlarmUnscheduled AlarmState = "UNSCHEDULED"
)

// Date and time layouts used for persisted rows.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Event is one scheduled reminder occurrence.
type Event struct {
	ID           int64      `json:"id" yaml:"id" db:"id"`
	RemoteID     *string    `json:"remote_id,omitempty" yaml:"remote_id,omitempty" db:"remote_id"`
	Name         string     `json:"name" yaml:"name" db:"name"`
	Date         string     `json:"date" yaml:"date" db:"date"`
	Time         string     `json:"time" yaml:"time" db:"time"`
	Description  string     `json:"description" yaml:"description" db:"description"`
	Recurrence   Recurrence `json:"recurrence_type" yaml:"recurrence_type" db:"recurrence_type"`
	SyncStatus   SyncStatus `json:"sync_status" yaml:"sync_status" db:"sync_status"`
	LastModified int64      `json:"last_modified" yaml:"last_modified" db:"last_modified"`
	AlarmState   AlarmState `json:"alarm_state" yaml:"alarm_state" db:"alarm_state"`
	ParentID     *int64     `json:"parent_id,omitempty" yaml:"parent_id,omitempty" db:"parent_id"`
}

// TimerKey is the Timer Service key under which this event's alarm is armed.
func (e Event) TimerKey() string {
	return TimerKeyFor(e.ID)
}

// Firing returns the payload that re-identifies this event when its timer fires.
func (e Event) Firing() Firing {
	return Firing{
		EventID:    e.ID,
		Name:       e.Name,
		Time:       e.Time,
		Recurrence: e.Recurrence,
	}
}

// TimerKeyFor builds the timer key for a local event id.
func TimerKeyFor(id int64) string {
	return fmt.Sprintf("event:%d", id)
}

// RemoteEvent is one record returned by the remote download.
type RemoteEvent struct {
	RemoteID    string     `json:"remote_id"`
	Name        string     `json:"name"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Description string     `json:"description"`
	Recurrence  Recurrence `json:"recurrence_type"`
}
