// Package reminder delivers fired reminders to the user and hands each
// firing to the recurrence engine.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/metrics"
	"github.com/nhle/reminders/internal/model"
)

// DefaultDeliveryTimeout bounds one delivery attempt.
const DefaultDeliveryTimeout = 15 * time.Second

// Notification titles shown to the user.
const (
	TitleEventToday = "Event Today"
	TitleSMSFailed  = "SMS failed"
)

// Notifications stores local notifications.
type Notifications interface {
	CreateNotification(ctx context.Context, n model.Notification) error
}

// Sender delivers a reminder text over an external channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Rescheduler produces the next occurrence of a fired event.
type Rescheduler interface {
	HandleFiring(ctx context.Context, f model.Firing) (*model.Event, error)
}

// Dispatcher is the timer handler. Rescheduling runs synchronously;
// delivery runs in its own goroutine and never delays it.
type Dispatcher struct {
	notes   Notifications
	rec     Rescheduler
	sms     Sender
	timeout time.Duration
	log     *zap.Logger

	wg sync.WaitGroup
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithSMS enables the SMS channel. A nil sender leaves it disabled.
func WithSMS(s Sender) Option {
	return func(d *Dispatcher) {
		d.sms = s
	}
}

// WithDeliveryTimeout overrides DefaultDeliveryTimeout.
func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDispatcher creates a dispatcher that records notifications in notes
// and reschedules through rec.
func NewDispatcher(notes Notifications, rec Rescheduler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notes:   notes,
		rec:     rec,
		timeout: DefaultDeliveryTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Text is the reminder body for a firing, e.g. "Reminder: Standup at 09:00".
func Text(f model.Firing) string {
	return fmt.Sprintf("Reminder: %s at %s", f.Name, f.Time)
}

// Handle delivers f in the background and reschedules it. It has the
// signature of timer.Handler.
func (d *Dispatcher) Handle(ctx context.Context, f model.Firing) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(f)
	}()

	next, err := d.rec.HandleFiring(ctx, f)
	if err != nil {
		d.log.Error("rescheduling fired event", zap.Int64("event_id", f.EventID), zap.Error(err))
		return
	}
	if next != nil {
		d.log.Info("next occurrence armed",
			zap.Int64("event_id", f.EventID),
			zap.Int64("next_id", next.ID),
			zap.String("date", next.Date),
			zap.String("time", next.Time),
		)
	}
}

// Wait blocks until in-flight deliveries finish or ctx expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver sends the SMS when enabled and falls back to a local
// notification otherwise. A failed SMS produces an "SMS failed" notification.
func (d *Dispatcher) deliver(f model.Firing) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	log := d.log.With(zap.Int64("event_id", f.EventID), zap.String("name", f.Name))

	if d.sms != nil {
		err := d.sms.Send(ctx, Text(f))
		if err == nil {
			metrics.IncDelivery("sms", "ok")
			log.Info("sms reminder sent")
			return
		}
		metrics.IncDelivery("sms", "failed")
		log.Warn("sending sms reminder", zap.Error(err))
		// ctx may be the one that just expired.
		fallbackCtx, cancelFallback := context.WithTimeout(context.Background(), d.timeout)
		defer cancelFallback()
		d.notify(fallbackCtx, log, model.Notification{
			EventID: f.EventID,
			Title:   TitleSMSFailed,
			Message: "Could not send SMS for event: " + f.Name,
		})
		return
	}

	d.notify(ctx, log, model.Notification{
		EventID: f.EventID,
		Title:   TitleEventToday,
		Message: fmt.Sprintf("%s at %s", f.Name, f.Time),
	})
}

func (d *Dispatcher) notify(ctx context.Context, log *zap.Logger, n model.Notification) {
	if err := d.notes.CreateNotification(ctx, n); err != nil {
		metrics.IncDelivery("notification", "failed")
		log.Error("storing notification", zap.Error(err))
		return
	}
	metrics.IncDelivery("notification", "ok")
}
