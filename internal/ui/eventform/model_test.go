package eventform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/reminders/internal/model"
)

func TestValidators(t *testing.T) {
	assert.Error(t, validateRequired("Name")("  "))
	assert.NoError(t, validateRequired("Name")("Gym"))

	assert.NoError(t, validateDate("2025-02-28"))
	assert.Error(t, validateDate("2025-02-30"))
	assert.Error(t, validateDate("28/02/2025"))

	assert.NoError(t, validateClock("00:00"))
	assert.NoError(t, validateClock("23:59"))
	assert.Error(t, validateClock("24:00"))
	assert.Error(t, validateClock("9:30"))
}

func TestStart_DefaultsToToday(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)

	m := New(loc, 80, 24)
	// 20:00 UTC on the 10th is already the 11th in Tokyo.
	m.now = func() time.Time { return time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC) }
	m.fb.name = "left over"

	_ = m.Start()
	require.NotNil(t, m.form)

	ev := m.Event()
	assert.Equal(t, "2025-03-11", ev.Date)
	assert.Empty(t, ev.Name)
	assert.Equal(t, model.RecurrenceNone, ev.Recurrence)
	assert.Contains(t, m.View(), "New Event")
}

func TestEvent_TrimsFields(t *testing.T) {
	m := New(time.UTC, 80, 24)
	m.fb.name = "  Standup "
	m.fb.date = "2025-03-10"
	m.fb.time = " 09:30"
	m.fb.recurrence = model.RecurrenceDaily

	assert.Equal(t, model.Event{
		Name:       "Standup",
		Date:       "2025-03-10",
		Time:       "09:30",
		Recurrence: model.RecurrenceDaily,
	}, m.Event())
}

func TestUpdate_WithoutForm(t *testing.T) {
	m := New(time.UTC, 80, 24)
	_, cmd := m.Update(nil)
	assert.Nil(t, cmd)
	assert.Empty(t, m.View())
}
