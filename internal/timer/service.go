// Package timer provides persistent one-shot timers. A timer armed under a
// key survives process restarts and fires no earlier than its instant.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/metrics"
	"github.com/nhle/reminders/internal/model"
)

// Backend persists armed timers. store.SQLiteStore and RedisBackend
// implement it.
type Backend interface {
	UpsertTimer(ctx context.Context, t model.Timer) error
	DeleteTimer(ctx context.Context, key string) error
	HasTimer(ctx context.Context, key string) (bool, error)
	DueTimers(ctx context.Context, now time.Time) ([]model.Timer, error)
	NextTimerAt(ctx context.Context) (time.Time, bool, error)
}

// Handler receives each fired payload. It runs on the service loop, so
// firings are handled one at a time in fire_at order.
type Handler func(ctx context.Context, f model.Firing)

// DefaultPollInterval bounds how long the loop sleeps between checks.
const DefaultPollInterval = time.Second

// Service arms timers in a Backend and delivers them from a single loop.
type Service struct {
	backend Backend
	poll    time.Duration
	now     func() time.Time
	log     *zap.Logger
	wake    chan struct{}
}

// Option customizes a Service.
type Option func(*Service)

// WithPollInterval sets the maximum sleep between backend checks.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a timer service on backend.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		poll:    DefaultPollInterval,
		now:     time.Now,
		log:     zap.NewNop(),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm schedules payload to fire at the given instant under key. Arming an
// existing key replaces its schedule.
func (s *Service) Arm(ctx context.Context, key string, at time.Time, payload model.Firing) error {
	if key == "" {
		return errors.New("timer key must not be empty")
	}
	if err := s.backend.UpsertTimer(ctx, model.Timer{Key: key, FireAt: at, Payload: payload}); err != nil {
		return fmt.Errorf("arming timer %s: %w", key, err)
	}
	s.log.Debug("timer armed", zap.String("key", key), zap.Time("at", at))
	s.notify()
	return nil
}

// Disarm removes the timer under key, if any.
func (s *Service) Disarm(ctx context.Context, key string) error {
	if err := s.backend.DeleteTimer(ctx, key); err != nil {
		return fmt.Errorf("disarming timer %s: %w", key, err)
	}
	s.notify()
	return nil
}

// Has reports whether a timer is armed under key.
func (s *Service) Has(ctx context.Context, key string) (bool, error) {
	ok, err := s.backend.HasTimer(ctx, key)
	if err != nil {
		return false, fmt.Errorf("looking up timer %s: %w", key, err)
	}
	return ok, nil
}

// Next returns the earliest armed instant. The boolean is false when no
// timer is armed.
func (s *Service) Next(ctx context.Context) (time.Time, bool, error) {
	at, ok, err := s.backend.NextTimerAt(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading next timer: %w", err)
	}
	return at, ok, nil
}

// Run delivers due timers to handler until ctx is cancelled. A timer is
// removed from the backend before its handler runs. Backend errors are
// logged and retried on the next tick.
func (s *Service) Run(ctx context.Context, handler Handler) error {
	s.log.Info("timer loop started", zap.Duration("poll_interval", s.poll))
	defer s.log.Info("timer loop stopped")

	for {
		if err := s.FireDue(ctx, handler); err != nil && ctx.Err() == nil {
			s.log.Warn("firing due timers", zap.Error(err))
		}

		wait := s.nextWait(ctx)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-s.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

// FireDue delivers every timer whose instant has passed and returns the
// first backend error it hit.
func (s *Service) FireDue(ctx context.Context, handler Handler) error {
	now := s.now()
	due, err := s.backend.DueTimers(ctx, now)
	if err != nil {
		return err
	}
	for _, t := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.backend.DeleteTimer(ctx, t.Key); err != nil {
			return fmt.Errorf("consuming timer %s: %w", t.Key, err)
		}
		metrics.ObserveTimerFired(t.FireAt, now)
		s.log.Info("timer fired",
			zap.String("key", t.Key),
			zap.Time("scheduled", t.FireAt),
			zap.Int64("event_id", t.Payload.EventID),
		)
		handler(ctx, t.Payload)
	}
	return nil
}

func (s *Service) nextWait(ctx context.Context) time.Duration {
	next, ok, err := s.backend.NextTimerAt(ctx)
	if err != nil || !ok {
		return s.poll
	}
	wait := next.Sub(s.now())
	if wait < 0 {
		return 0
	}
	if wait > s.poll {
		return s.poll
	}
	return wait
}

func (s *Service) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
