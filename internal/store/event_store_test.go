package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/store"
	"github.com/nhle/reminders/tests/testutil"
)

func strPtr(s string) *string { return &s }

func TestInsertEvent_Defaults(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.InsertEvent(ctx, model.Event{Name: "Standup", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)
	assert.Positive(t, id)

	e, err := s.GetEventByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RecurrenceNone, e.Recurrence)
	assert.Equal(t, model.SyncPending, e.SyncStatus)
	assert.Equal(t, model.AlarmUnscheduled, e.AlarmState)
	assert.Positive(t, e.LastModified)
	assert.Nil(t, e.RemoteID)
	assert.Nil(t, e.ParentID)
}

func TestInsertEvent_Validation(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		event model.Event
	}{
		{"empty name", model.Event{Name: " ", Date: "2024-05-01", Time: "09:00"}},
		{"bad date", model.Event{Name: "x", Date: "05/01/2024", Time: "09:00"}},
		{"bad time", model.Event{Name: "x", Date: "2024-05-01", Time: "25:99"}},
		{"synced without remote id", model.Event{
			Name: "x", Date: "2024-05-01", Time: "09:00", SyncStatus: model.SyncSynced,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.InsertEvent(ctx, tt.event)
			assert.Error(t, err)
		})
	}
}

func TestInsertEvent_IDsNeverReused(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first, err := s.InsertEvent(ctx, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteEvent(ctx, first))

	second, err := s.InsertEvent(ctx, model.Event{Name: "b", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestInsertEvent_DuplicateRemoteID(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	imported := model.Event{
		Name: "Standup", Date: "2025-01-01", Time: "12:00",
		RemoteID: strPtr("r1"), SyncStatus: model.SyncSynced,
	}
	_, err := s.InsertEvent(ctx, imported)
	require.NoError(t, err)

	_, err = s.InsertEvent(ctx, imported)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))

	exists, err := s.EventExistsByRemoteID(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.EventExistsByRemoteID(ctx, "r2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetEventByID_NotFound(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetEventByID(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetEventsForDate_OrderedByTime(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, e := range []model.Event{
		{Name: "late", Date: "2024-05-01", Time: "18:00"},
		{Name: "other day", Date: "2024-05-02", Time: "07:00"},
		{Name: "early", Date: "2024-05-01", Time: "08:15"},
		{Name: "noon", Date: "2024-05-01", Time: "12:00"},
	} {
		_, err := s.InsertEvent(ctx, e)
		require.NoError(t, err)
	}

	events, err := s.GetEventsForDate(ctx, "2024-05-01")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "early", events[0].Name)
	assert.Equal(t, "noon", events[1].Name)
	assert.Equal(t, "late", events[2].Name)
}

func TestGetEvents_Filters(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	parent, err := s.InsertEvent(ctx, model.Event{
		Name: "Gym", Date: "2024-05-01", Time: "06:00",
		Recurrence: model.RecurrenceDaily, AlarmState: model.AlarmFired,
	})
	require.NoError(t, err)
	_, err = s.InsertEvent(ctx, model.Event{
		Name: "Gym", Date: "2024-05-02", Time: "06:00",
		Recurrence: model.RecurrenceDaily, AlarmState: model.AlarmPendingArm, ParentID: &parent,
	})
	require.NoError(t, err)
	_, err = s.InsertEvent(ctx, model.Event{
		Name: "Lunch", Date: "2024-05-02", Time: "12:00", Description: "with team",
	})
	require.NoError(t, err)

	children, err := s.GetEvents(ctx, store.EventFilter{ParentID: &parent})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "2024-05-02", children[0].Date)

	pending, err := s.GetEvents(ctx, store.EventFilter{
		AlarmStates: []model.AlarmState{model.AlarmPendingArm, model.AlarmFired},
	})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	found, err := s.GetEvents(ctx, store.EventFilter{Query: strPtr("team")})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Lunch", found[0].Name)

	limited, err := s.GetEvents(ctx, store.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMarkEventSynced(t *testing.T) {
	clock := time.UnixMilli(1_700_000_000_000)
	s := testutil.NewTestStore(t, store.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	id, err := s.InsertEvent(ctx, model.Event{Name: "Standup", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	require.NoError(t, s.MarkEventSynced(ctx, id, "101"))

	e, err := s.GetEventByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSynced, e.SyncStatus)
	require.NotNil(t, e.RemoteID)
	assert.Equal(t, "101", *e.RemoteID)
	assert.Equal(t, clock.UnixMilli(), e.LastModified)

	unsynced, err := s.GetUnsyncedEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	assert.Error(t, s.MarkEventSynced(ctx, id, ""))
	assert.ErrorIs(t, s.MarkEventSynced(ctx, 999, "102"), store.ErrNotFound)
}

func TestUpdateEvent_LastModifiedNeverDecreases(t *testing.T) {
	clock := time.UnixMilli(1_700_000_000_000)
	s := testutil.NewTestStore(t, store.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	id, err := s.InsertEvent(ctx, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)

	clock = clock.Add(-time.Hour)
	require.NoError(t, s.UpdateEvent(ctx, id, store.EventUpdate{Name: strPtr("b")}))

	e, err := s.GetEventByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b", e.Name)
	assert.Equal(t, int64(1_700_000_000_000), e.LastModified)
}

func TestUpdateEvent_SyncedRequiresRemoteID(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.InsertEvent(ctx, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)

	synced := model.SyncSynced
	require.NoError(t, s.UpdateEvent(ctx, id, store.EventUpdate{SyncStatus: &synced}))

	e, err := s.GetEventByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncPending, e.SyncStatus)
}

func TestSetAlarmState(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.InsertEvent(ctx, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)

	require.NoError(t, s.SetAlarmState(ctx, id, model.AlarmArmed))
	e, err := s.GetEventByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.AlarmArmed, e.AlarmState)

	assert.ErrorIs(t, s.SetAlarmState(ctx, 999, model.AlarmArmed), store.ErrNotFound)
}

func TestDeleteEvent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.InsertEvent(ctx, model.Event{Name: "a", Date: "2024-05-01", Time: "09:00"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, id))
	_, err = s.GetEventByID(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteEvent(ctx, id), store.ErrNotFound)
}

func TestMetadata(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetMetadata(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ts, err := s.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, s.SetMetadata(ctx, "k", "v1"))
	require.NoError(t, s.SetMetadata(ctx, "k", "v2"))
	v, ok, err := s.GetMetadata(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	at := time.UnixMilli(1_714_550_400_123)
	require.NoError(t, s.UpdateLastSyncTimestamp(ctx, at))
	ts, err = s.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), ts)
}

func TestNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateNotification(ctx, model.Notification{
		EventID: 1, Title: "Event Today", Message: "Standup at 09:00",
		CreatedAt: time.UnixMilli(1000),
	}))
	require.NoError(t, s.CreateNotification(ctx, model.Notification{
		EventID: 2, Title: "SMS failed", Message: "could not send",
		CreatedAt: time.UnixMilli(2000),
	}))

	unread, err := s.GetUnreadNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "SMS failed", unread[0].Title)
	assert.NotEmpty(t, unread[0].ID)

	require.NoError(t, s.MarkNotificationRead(ctx, unread[0].ID))
	unread, err = s.GetUnreadNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Event Today", unread[0].Title)

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "nope"), store.ErrNotFound)
}

func TestHealthCheck(t *testing.T) {
	s := testutil.NewTestStore(t)
	assert.NoError(t, s.HealthCheck(context.Background()))
}
