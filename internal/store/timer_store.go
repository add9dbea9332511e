package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/reminders/internal/model"
)

type timerRow struct {
	Key     string `db:"key"`
	FireAt  int64  `db:"fire_at"`
	Payload string `db:"payload"`
}

func (r timerRow) toModel() (model.Timer, error) {
	var f model.Firing
	if err := json.Unmarshal([]byte(r.Payload), &f); err != nil {
		return model.Timer{}, fmt.Errorf("decoding payload of timer %s: %w", r.Key, err)
	}
	return model.Timer{Key: r.Key, FireAt: time.UnixMilli(r.FireAt), Payload: f}, nil
}

// UpsertTimer persists t. An existing timer with the same key is replaced.
func (s *SQLiteStore) UpsertTimer(ctx context.Context, t model.Timer) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload of timer %s: %w", t.Key, err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO timers (key, fire_at, payload) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			fire_at = excluded.fire_at, payload = excluded.payload`,
		t.Key, t.FireAtMillis(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("upserting timer %s: %w", t.Key, err)
	}
	return nil
}

// DeleteTimer removes a timer. Deleting a missing key is not an error.
func (s *SQLiteStore) DeleteTimer(ctx context.Context, key string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM timers WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting timer %s: %w", key, err)
	}
	return nil
}

// HasTimer reports whether key is armed.
func (s *SQLiteStore) HasTimer(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int
	if err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM timers WHERE key = ?", key); err != nil {
		return false, fmt.Errorf("checking timer %s: %w", key, err)
	}
	return count > 0, nil
}

// DueTimers returns every timer with fire_at <= now, earliest first.
func (s *SQLiteStore) DueTimers(ctx context.Context, now time.Time) ([]model.Timer, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []timerRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT key, fire_at, payload FROM timers WHERE fire_at <= ? ORDER BY fire_at, key",
		now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying due timers: %w", err)
	}

	timers := make([]model.Timer, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	return timers, nil
}

// NextTimerAt returns the earliest armed fire time. The boolean is false
// when nothing is armed.
func (s *SQLiteStore) NextTimerAt(ctx context.Context) (time.Time, bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var fireAt int64
	err := s.db.GetContext(ctx, &fireAt,
		"SELECT fire_at FROM timers ORDER BY fire_at LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying next timer: %w", err)
	}
	return time.UnixMilli(fireAt), true, nil
}
