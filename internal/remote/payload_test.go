package remote_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/remote"
)

func TestFormatBody(t *testing.T) {
	assert.Equal(t, "05/01/2024 09:00", remote.FormatBody("2024-05-01", "09:00"))
	assert.Equal(t, "12/31/2025 23:59", remote.FormatBody("2025-12-31", "23:59"))
	assert.Equal(t, "someday noon", remote.FormatBody("someday", "noon"))
}

func TestRecurrenceRoundTrip(t *testing.T) {
	for _, r := range []model.Recurrence{
		model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly,
	} {
		encoded := remote.EncodeRecurrence(r)
		assert.NotEmpty(t, encoded)

		decoded, err := remote.DecodeRecurrence(encoded)
		require.NoError(t, err)
		assert.Equal(t, r, decoded)
	}

	assert.Empty(t, remote.EncodeRecurrence(model.RecurrenceNone))
}

func TestDecodeRecurrence(t *testing.T) {
	tests := []struct {
		in      string
		want    model.Recurrence
		wantErr bool
	}{
		{"", model.RecurrenceNone, false},
		{"RRULE:FREQ=MONTHLY", model.RecurrenceMonthly, false},
		{"FREQ=DAILY;INTERVAL=1", model.RecurrenceDaily, false},
		{"FREQ=DAILY;INTERVAL=2", model.RecurrenceNone, true},
		{"FREQ=WEEKLY;COUNT=3", model.RecurrenceNone, true},
		{"FREQ=YEARLY", model.RecurrenceNone, true},
		{"garbage", model.RecurrenceNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := remote.DecodeRecurrence(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlexibleID(t *testing.T) {
	var p remote.Post
	require.NoError(t, json.Unmarshal([]byte(`{"id": 101, "title": "x"}`), &p))
	assert.Equal(t, remote.FlexibleID("101"), p.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "abc"}`), &p))
	assert.Equal(t, remote.FlexibleID("abc"), p.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": null}`), &p))
	assert.Equal(t, remote.FlexibleID(""), p.ID)

	out, err := json.Marshal(remote.Post{ID: "42", Title: "x", UserID: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 42, "title": "x", "body": "", "userId": 1}`, string(out))

	out, err = json.Marshal(remote.Post{ID: "r1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "r1", "title": "", "body": "", "userId": 0}`, string(out))
}
