package reminder_test

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/reminder"
	"github.com/nhle/reminders/tests/testutil"
)

type recordingRescheduler struct {
	mu     gosync.Mutex
	fired  []model.Firing
	result *model.Event
	err    error
}

func (r *recordingRescheduler) HandleFiring(_ context.Context, f model.Firing) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, f)
	return r.result, r.err
}

type stubSender struct {
	mu    gosync.Mutex
	texts []string
	err   error
	block chan struct{}
}

func (s *stubSender) Send(ctx context.Context, text string) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

var standup = model.Firing{EventID: 7, Name: "Standup", Time: "09:00", Recurrence: model.RecurrenceDaily}

func TestText(t *testing.T) {
	assert.Equal(t, "Reminder: Standup at 09:00", reminder.Text(standup))
}

func TestDispatcher_NotificationWhenSMSDisabled(t *testing.T) {
	s := testutil.NewTestStore(t)
	rec := &recordingRescheduler{}
	d := reminder.NewDispatcher(s, rec)

	d.Handle(context.Background(), standup)
	require.NoError(t, d.Wait(context.Background()))

	notes, err := s.GetUnreadNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Event Today", notes[0].Title)
	assert.Equal(t, "Standup at 09:00", notes[0].Message)
	assert.Equal(t, int64(7), notes[0].EventID)

	assert.Equal(t, []model.Firing{standup}, rec.fired)
}

func TestDispatcher_SMSSent(t *testing.T) {
	s := testutil.NewTestStore(t)
	sms := &stubSender{}
	d := reminder.NewDispatcher(s, &recordingRescheduler{}, reminder.WithSMS(sms))

	d.Handle(context.Background(), standup)
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, []string{"Reminder: Standup at 09:00"}, sms.texts)
	notes, err := s.GetUnreadNotifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDispatcher_SMSFailureFallsBack(t *testing.T) {
	s := testutil.NewTestStore(t)
	sms := &stubSender{err: errors.New("relay refused")}
	d := reminder.NewDispatcher(s, &recordingRescheduler{}, reminder.WithSMS(sms))

	d.Handle(context.Background(), standup)
	require.NoError(t, d.Wait(context.Background()))

	notes, err := s.GetUnreadNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "SMS failed", notes[0].Title)
	assert.Equal(t, "Could not send SMS for event: Standup", notes[0].Message)
}

func TestDispatcher_RescheduleDoesNotWaitForDelivery(t *testing.T) {
	s := testutil.NewTestStore(t)
	sms := &stubSender{block: make(chan struct{})}
	rec := &recordingRescheduler{}
	d := reminder.NewDispatcher(s, rec, reminder.WithSMS(sms))

	done := make(chan struct{})
	go func() {
		d.Handle(context.Background(), standup)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle blocked on delivery")
	}
	assert.Len(t, rec.fired, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(sms.block)
	require.NoError(t, d.Wait(context.Background()))
}

func TestDispatcher_DeliveryTimeout(t *testing.T) {
	s := testutil.NewTestStore(t)
	sms := &stubSender{block: make(chan struct{})}
	d := reminder.NewDispatcher(s, &recordingRescheduler{},
		reminder.WithSMS(sms),
		reminder.WithDeliveryTimeout(20*time.Millisecond),
	)

	d.Handle(context.Background(), standup)
	require.NoError(t, d.Wait(context.Background()))

	notes, err := s.GetUnreadNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "SMS failed", notes[0].Title)
}

func TestDispatcher_RescheduleErrorStillDelivers(t *testing.T) {
	s := testutil.NewTestStore(t)
	d := reminder.NewDispatcher(s, &recordingRescheduler{err: errors.New("disk full")})

	d.Handle(context.Background(), standup)
	require.NoError(t, d.Wait(context.Background()))

	notes, err := s.GetUnreadNotifications(context.Background())
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}
