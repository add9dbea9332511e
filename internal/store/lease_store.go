package store

import (
	"context"
	"fmt"
	"time"
)

// AcquireSyncLease takes or renews the database-wide sync lease for owner
// until ttl from now. It reports false while another owner holds an
// unexpired lease. The upsert is a single statement, so two processes on
// the same file cannot both win.
func (s *SQLiteStore) AcquireSyncLease(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_lease (id, owner, expires_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE sync_lease.owner = excluded.owner OR sync_lease.expires_at <= ?`,
		owner, now+ttl.Milliseconds(), now,
	)
	if err != nil {
		return false, fmt.Errorf("acquiring sync lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring sync lease: %w", err)
	}
	return n > 0, nil
}

// ReleaseSyncLease drops the lease if owner still holds it.
func (s *SQLiteStore) ReleaseSyncLease(ctx context.Context, owner string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_lease WHERE id = 1 AND owner = ?`, owner); err != nil {
		return fmt.Errorf("releasing sync lease: %w", err)
	}
	return nil
}
