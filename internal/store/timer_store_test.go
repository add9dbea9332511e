package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/tests/testutil"
)

func TestTimers_UpsertReplacesSchedule(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_714_550_400_000)
	firing := model.Firing{EventID: 7, Name: "Gym", Time: "06:00", Recurrence: model.RecurrenceDaily}

	require.NoError(t, s.UpsertTimer(ctx, model.Timer{Key: "event:7", FireAt: base, Payload: firing}))
	require.NoError(t, s.UpsertTimer(ctx, model.Timer{Key: "event:7", FireAt: base.Add(time.Hour), Payload: firing}))

	due, err := s.DueTimers(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, due)

	next, ok, err := s.NextTimerAt(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, next.Equal(base.Add(time.Hour)))

	due, err = s.DueTimers(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "event:7", due[0].Key)
	assert.Equal(t, firing, due[0].Payload)
}

func TestTimers_DueOrderingAndDelete(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_714_550_400_000)
	require.NoError(t, s.UpsertTimer(ctx, model.Timer{Key: "event:2", FireAt: base.Add(2 * time.Second)}))
	require.NoError(t, s.UpsertTimer(ctx, model.Timer{Key: "event:1", FireAt: base.Add(time.Second)}))
	require.NoError(t, s.UpsertTimer(ctx, model.Timer{Key: "event:3", FireAt: base.Add(time.Hour)}))

	due, err := s.DueTimers(ctx, base.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "event:1", due[0].Key)
	assert.Equal(t, "event:2", due[1].Key)

	has, err := s.HasTimer(ctx, "event:1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.DeleteTimer(ctx, "event:1"))
	require.NoError(t, s.DeleteTimer(ctx, "event:1"))

	has, err = s.HasTimer(ctx, "event:1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestTimers_NoneArmed(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, ok, err := s.NextTimerAt(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
