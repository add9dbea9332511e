// Package recurrence regenerates repeating events. When an occurrence fires,
// the engine computes the next instant, persists the successor row and arms
// its timer.
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/metrics"
	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/store"
)

// ErrInvalidTime reports a firing time that is not strict 24h HH:MM.
var ErrInvalidTime = errors.New("invalid time of day")

// ErrNotRecurring reports a recurrence type that produces no successor.
var ErrNotRecurring = errors.New("recurrence type does not repeat")

// EventStore is the subset of store.Store the engine needs.
type EventStore interface {
	InsertEvent(ctx context.Context, e model.Event) (int64, error)
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetEvents(ctx context.Context, filter store.EventFilter) ([]model.Event, error)
	SetAlarmState(ctx context.Context, id int64, state model.AlarmState) error
}

// Timers arms persistent one-shot timers.
type Timers interface {
	Arm(ctx context.Context, key string, at time.Time, payload model.Firing) error
	Has(ctx context.Context, key string) (bool, error)
}

// Engine handles firings and keeps the timer chain of every recurring
// event alive.
type Engine struct {
	store  EventStore
	timers Timers
	loc    *time.Location
	now    func() time.Time
	log    *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocation sets the zone in which dates and times are interpreted.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine creates a recurrence engine.
func NewEngine(s EventStore, timers Timers, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		timers: timers,
		loc:    time.Local,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ParseClock parses a strict 24h "HH:MM" string.
func ParseClock(hhmm string) (hour, minute int, err error) {
	m := clockPattern.FindStringSubmatch(hhmm)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, hhmm)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// NextOccurrence returns the instant one period after today (in loc) at
// hhmm. Monthly steps clamp the day to the end of the target month, so
// Jan 31 becomes Feb 28 (or 29).
func NextOccurrence(now time.Time, hhmm string, r model.Recurrence, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()

	switch r {
	case model.RecurrenceDaily:
		return time.Date(y, m, d+1, hour, minute, 0, 0, loc), nil
	case model.RecurrenceWeekly:
		return time.Date(y, m, d+7, hour, minute, 0, 0, loc), nil
	case model.RecurrenceMonthly:
		ty, tm := y, m+1
		if tm > time.December {
			ty, tm = y+1, time.January
		}
		if last := daysIn(ty, tm); d > last {
			d = last
		}
		return time.Date(ty, tm, d, hour, minute, 0, 0, loc), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotRecurring, r)
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// HandleFiring processes one fired occurrence. For a recurring payload it
// inserts the successor, arms its timer and returns the successor. It
// returns (nil, nil) when nothing is rescheduled: NONE recurrence or a
// malformed time. Storage and arming faults are returned.
func (e *Engine) HandleFiring(ctx context.Context, f model.Firing) (*model.Event, error) {
	if err := e.transition(ctx, f.EventID, model.AlarmFired); err != nil {
		return nil, err
	}
	return e.reschedule(ctx, f, e.now())
}

// reschedule runs the successor step for f with base as the firing date.
func (e *Engine) reschedule(ctx context.Context, f model.Firing, base time.Time) (*model.Event, error) {
	log := e.log.With(zap.Int64("event_id", f.EventID), zap.String("name", f.Name))

	if !f.Recurrence.IsRecurring() {
		metrics.IncRecurrence("terminated")
		log.Debug("one-shot occurrence finished", zap.String("recurrence", string(f.Recurrence)))
		return nil, e.transition(ctx, f.EventID, model.AlarmTerminated)
	}

	next, err := NextOccurrence(base, f.Time, f.Recurrence, e.loc)
	if err != nil {
		metrics.IncRecurrence("invalid_time")
		log.Warn("skipping reschedule", zap.String("time", f.Time), zap.Error(err))
		return nil, e.transition(ctx, f.EventID, model.AlarmTerminated)
	}

	successor := model.Event{
		Name:       f.Name,
		Date:       next.Format(model.DateLayout),
		Time:       next.Format(model.TimeLayout),
		Recurrence: f.Recurrence,
		SyncStatus: model.SyncPending,
		AlarmState: model.AlarmPendingArm,
	}
	if f.EventID > 0 {
		parent := f.EventID
		successor.ParentID = &parent
	}

	id, err := e.store.InsertEvent(ctx, successor)
	if err != nil {
		metrics.IncRecurrence("store_error")
		return nil, fmt.Errorf("inserting successor of event %d: %w", f.EventID, err)
	}
	successor.ID = id

	if err := e.timers.Arm(ctx, successor.TimerKey(), next, successor.Firing()); err != nil {
		metrics.IncRecurrence("arm_error")
		return nil, fmt.Errorf("arming successor %d: %w", id, err)
	}

	if err := e.store.SetAlarmState(ctx, id, model.AlarmArmed); err != nil {
		return nil, fmt.Errorf("marking successor %d armed: %w", id, err)
	}
	successor.AlarmState = model.AlarmArmed
	if err := e.transition(ctx, f.EventID, model.AlarmRescheduled); err != nil {
		return nil, err
	}

	metrics.IncRecurrence("rescheduled")
	log.Info("occurrence rescheduled",
		zap.Int64("successor_id", id),
		zap.String("recurrence", string(f.Recurrence)),
		zap.Time("at", next),
	)
	return &successor, nil
}

// Schedule persists a user-created event and arms its first timer.
func (e *Engine) Schedule(ctx context.Context, ev model.Event) (*model.Event, error) {
	at, err := e.instant(ev.Date, ev.Time)
	if err != nil {
		return nil, err
	}
	if ev.Recurrence == "" {
		ev.Recurrence = model.RecurrenceNone
	}
	ev.SyncStatus = model.SyncPending
	ev.AlarmState = model.AlarmPendingArm

	id, err := e.store.InsertEvent(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("creating event %q: %w", ev.Name, err)
	}
	ev.ID = id

	if err := e.timers.Arm(ctx, ev.TimerKey(), at, ev.Firing()); err != nil {
		return nil, fmt.Errorf("arming event %d: %w", id, err)
	}
	if err := e.store.SetAlarmState(ctx, id, model.AlarmArmed); err != nil {
		return nil, fmt.Errorf("marking event %d armed: %w", id, err)
	}
	ev.AlarmState = model.AlarmArmed

	e.log.Info("event scheduled", zap.Int64("event_id", id), zap.Time("at", at))
	return &ev, nil
}

// instant resolves a persisted date and time in the engine's location.
func (e *Engine) instant(date, hhmm string) (time.Time, error) {
	hour, minute, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.ParseInLocation(model.DateLayout, date, e.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event date %q: %w", date, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, e.loc), nil
}

// transition moves a row to state. A row deleted since it was armed is
// not an error.
func (e *Engine) transition(ctx context.Context, id int64, state model.AlarmState) error {
	if id <= 0 {
		return nil
	}
	err := e.store.SetAlarmState(ctx, id, state)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("setting event %d %s: %w", id, state, err)
	}
	return nil
}
