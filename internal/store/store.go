package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/reminders/internal/model"
)

// ErrNotFound indicates a missing row.
var ErrNotFound = errors.New("record not found")

// MetaLastSyncTimestamp is the sync metadata key holding the last
// successful pass time in milliseconds since the epoch.
const MetaLastSyncTimestamp = "last_sync_timestamp"

// EventFilter controls filtering for event queries. Results are always
// ordered by date, then time, then id.
type EventFilter struct {
	Date         *string
	SyncStatuses []model.SyncStatus
	AlarmStates  []model.AlarmState
	RemoteID     *string
	ParentID     *int64
	Query        *string // search name + description
	Limit        int
}

// EventUpdate is a partial update; nil fields are left untouched.
// Every update refreshes last_modified.
type EventUpdate struct {
	Name        *string
	Date        *string
	Time        *string
	Description *string
	Recurrence  *model.Recurrence
	SyncStatus  *model.SyncStatus
	RemoteID    *string
	AlarmState  *model.AlarmState
}

// Store defines the persistence interface for events, sync metadata,
// notifications and persisted timers. All operations are atomic at the
// single-row level.
type Store interface {
	// === Events ===

	InsertEvent(ctx context.Context, e model.Event) (int64, error)
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetEvents(ctx context.Context, filter EventFilter) ([]model.Event, error)
	GetEventsForDate(ctx context.Context, date string) ([]model.Event, error)
	GetUnsyncedEvents(ctx context.Context) ([]model.Event, error)
	EventExistsByRemoteID(ctx context.Context, remoteID string) (bool, error)
	UpdateEvent(ctx context.Context, id int64, upd EventUpdate) error
	MarkEventSynced(ctx context.Context, id int64, remoteID string) error
	SetAlarmState(ctx context.Context, id int64, state model.AlarmState) error
	DeleteEvent(ctx context.Context, id int64) error

	// === Sync metadata ===

	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error
	LastSyncTimestamp(ctx context.Context) (int64, error)
	UpdateLastSyncTimestamp(ctx context.Context, at time.Time) error
	AcquireSyncLease(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	ReleaseSyncLease(ctx context.Context, owner string) error

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	// === Timers ===

	UpsertTimer(ctx context.Context, t model.Timer) error
	DeleteTimer(ctx context.Context, key string) error
	HasTimer(ctx context.Context, key string) (bool, error)
	DueTimers(ctx context.Context, now time.Time) ([]model.Timer, error)
	NextTimerAt(ctx context.Context) (time.Time, bool, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
