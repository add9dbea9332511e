package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/reminders/internal/model"
)

// ErrConflict indicates a row whose remote id is already stored.
var ErrConflict = errors.New("remote id already stored")

const eventColumns = `id, remote_id, name, date, time, description,
	recurrence_type, sync_status, last_modified, alarm_state, parent_id`

// InsertEvent inserts a new event and returns the id the store assigned.
// Zero-valued enums default to NONE, PENDING and UNSCHEDULED.
func (s *SQLiteStore) InsertEvent(ctx context.Context, e model.Event) (int64, error) {
	if strings.TrimSpace(e.Name) == "" {
		return 0, fmt.Errorf("event name must not be empty")
	}
	if err := validateDateTime(e.Date, e.Time); err != nil {
		return 0, err
	}
	if e.Recurrence == "" {
		e.Recurrence = model.RecurrenceNone
	}
	if e.SyncStatus == "" {
		e.SyncStatus = model.SyncPending
	}
	if e.AlarmState == "" {
		e.AlarmState = model.AlarmUnscheduled
	}
	if e.SyncStatus == model.SyncSynced && (e.RemoteID == nil || *e.RemoteID == "") {
		return 0, fmt.Errorf("synced event %q requires a remote id", e.Name)
	}
	if e.LastModified == 0 {
		e.LastModified = s.now().UnixMilli()
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			remote_id, name, date, time, description,
			recurrence_type, sync_status, last_modified, alarm_state, parent_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RemoteID, e.Name, e.Date, e.Time, e.Description,
		e.Recurrence, e.SyncStatus, e.LastModified, e.AlarmState, e.ParentID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("inserting event %q: %w", e.Name, ErrConflict)
		}
		return 0, fmt.Errorf("inserting event %q: %w", e.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted event id: %w", err)
	}
	return id, nil
}

// GetEventByID retrieves a single event by id.
func (s *SQLiteStore) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var e model.Event
	err := s.db.GetContext(ctx, &e,
		"SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %d: %w", id, err)
	}
	return &e, nil
}

// GetEvents retrieves events matching the filter.
func (s *SQLiteStore) GetEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query, args := buildEventQuery("SELECT "+eventColumns, filter)

	var events []model.Event
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return events, nil
}

// GetEventsForDate returns the events on date, ordered by time.
func (s *SQLiteStore) GetEventsForDate(ctx context.Context, date string) ([]model.Event, error) {
	return s.GetEvents(ctx, EventFilter{Date: &date})
}

// GetUnsyncedEvents returns every row still waiting for upload: PENDING
// rows and legacy LOCAL_ONLY rows.
func (s *SQLiteStore) GetUnsyncedEvents(ctx context.Context) ([]model.Event, error) {
	return s.GetEvents(ctx, EventFilter{
		SyncStatuses: []model.SyncStatus{model.SyncPending, model.SyncLocalOnly},
	})
}

// EventExistsByRemoteID reports whether a row carries remoteID.
func (s *SQLiteStore) EventExistsByRemoteID(ctx context.Context, remoteID string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM events WHERE remote_id = ?", remoteID)
	if err != nil {
		return false, fmt.Errorf("checking remote id %s: %w", remoteID, err)
	}
	return count > 0, nil
}

// UpdateEvent applies a partial update and refreshes last_modified.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, id int64, upd EventUpdate) error {
	var sets []string
	var args []interface{}

	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return fmt.Errorf("event name must not be empty")
		}
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Date != nil {
		if _, err := time.Parse(model.DateLayout, *upd.Date); err != nil {
			return fmt.Errorf("invalid event date %q: %w", *upd.Date, err)
		}
		sets = append(sets, "date = ?")
		args = append(args, *upd.Date)
	}
	if upd.Time != nil {
		if _, err := time.Parse(model.TimeLayout, *upd.Time); err != nil {
			return fmt.Errorf("invalid event time %q: %w", *upd.Time, err)
		}
		sets = append(sets, "time = ?")
		args = append(args, *upd.Time)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Recurrence != nil {
		sets = append(sets, "recurrence_type = ?")
		args = append(args, *upd.Recurrence)
	}
	if upd.RemoteID != nil {
		if *upd.RemoteID == "" {
			return fmt.Errorf("remote id must not be empty")
		}
		sets = append(sets, "remote_id = ?")
		args = append(args, *upd.RemoteID)
	}
	if upd.SyncStatus != nil {
		if *upd.SyncStatus == model.SyncSynced && upd.RemoteID == nil {
			// Only allowed when the row already carries a remote id.
			sets = append(sets, "sync_status = CASE WHEN remote_id IS NULL THEN sync_status ELSE ? END")
		} else {
			sets = append(sets, "sync_status = ?")
		}
		args = append(args, *upd.SyncStatus)
	}
	if upd.AlarmState != nil {
		sets = append(sets, "alarm_state = ?")
		args = append(args, *upd.AlarmState)
	}

	sets = append(sets, "last_modified = MAX(last_modified, ?)")
	args = append(args, s.now().UnixMilli(), id)

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		"UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("updating event %d: %w", id, ErrConflict)
		}
		return fmt.Errorf("updating event %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkEventSynced records a confirmed upload: the row becomes SYNCED
// with remoteID and a refreshed last_modified.
func (s *SQLiteStore) MarkEventSynced(ctx context.Context, id int64, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("marking event %d synced: remote id must not be empty", id)
	}
	status := model.SyncSynced
	return s.UpdateEvent(ctx, id, EventUpdate{SyncStatus: &status, RemoteID: &remoteID})
}

// SetAlarmState moves a row along the timer chain.
func (s *SQLiteStore) SetAlarmState(ctx context.Context, id int64, state model.AlarmState) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		"UPDATE events SET alarm_state = ? WHERE id = ?", state, id)
	if err != nil {
		return fmt.Errorf("setting alarm state of event %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteEvent removes an event by id. Armed timers are left in place.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id int64) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting event %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// buildEventQuery constructs the SQL query and args for an EventFilter.
func buildEventQuery(selectClause string, filter EventFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Date != nil {
		conditions = append(conditions, "date = ?")
		args = append(args, *filter.Date)
	}
	if len(filter.SyncStatuses) > 0 {
		placeholders := make([]string, len(filter.SyncStatuses))
		for i, st := range filter.SyncStatuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions,
			"sync_status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.AlarmStates) > 0 {
		placeholders := make([]string, len(filter.AlarmStates))
		for i, st := range filter.AlarmStates {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions,
			"alarm_state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.RemoteID != nil {
		conditions = append(conditions, "remote_id = ?")
		args = append(args, *filter.RemoteID)
	}
	if filter.ParentID != nil {
		conditions = append(conditions, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(name LIKE ? OR description LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q)
	}

	query := selectClause + " FROM events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date, time, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return query, args
}

// validateDateTime checks the persisted date and time layouts.
func validateDateTime(date, hhmm string) error {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return fmt.Errorf("invalid event date %q: %w", date, err)
	}
	if _, err := time.Parse(model.TimeLayout, hhmm); err != nil {
		return fmt.Errorf("invalid event time %q: %w", hhmm, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
