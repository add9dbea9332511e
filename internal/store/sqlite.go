package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/reminders/internal/model"
)

// defaultOpTimeout bounds a single store call when the caller's context
// carries no earlier deadline.
const defaultOpTimeout = 5 * time.Second

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// Option customizes a SQLiteStore.
type Option func(*SQLiteStore)

// WithTimeout sets the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the wall clock used for last_modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite has a single writer; one connection keeps row updates
	// serialized and keeps :memory: databases on a single handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, timeout: defaultOpTimeout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// opContext applies the per-operation timeout.
func (s *SQLiteStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetMetadata returns the value stored under key. The boolean is false
// when the key has never been written.
func (s *SQLiteStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var value string
	err := s.db.GetContext(ctx, &value,
		"SELECT meta_value FROM sync_metadata WHERE meta_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting metadata %s: %w", key, err)
	}
	return value, true, nil
}

// SetMetadata upserts key. Writing an existing key replaces its value.
func (s *SQLiteStore) SetMetadata(ctx context.Context, key, value string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (meta_key, meta_value) VALUES (?, ?)
		ON CONFLICT(meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting metadata %s: %w", key, err)
	}
	return nil
}

// LastSyncTimestamp returns the last sync time in epoch milliseconds,
// or 0 if the store has never synced.
func (s *SQLiteStore) LastSyncTimestamp(ctx context.Context) (int64, error) {
	value, ok, err := s.GetMetadata(ctx, MetaLastSyncTimestamp)
	if err != nil || !ok {
		return 0, err
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", MetaLastSyncTimestamp, value, err)
	}
	return ts, nil
}

// UpdateLastSyncTimestamp records at as the last sync time.
func (s *SQLiteStore) UpdateLastSyncTimestamp(ctx context.Context, at time.Time) error {
	return s.SetMetadata(ctx, MetaLastSyncTimestamp, strconv.FormatInt(at.UnixMilli(), 10))
}

// CreateNotification inserts a notification. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n model.Notification) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, event_id, title, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.EventID, n.Title, n.Message, boolToInt(n.Read), n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// GetUnreadNotifications returns all unread notifications,
// newest first.
func (s *SQLiteStore) GetUnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, event_id, title, message, read, created_at
		FROM notifications WHERE read = 0
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}

	notifications := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, r.toModel())
	}
	return notifications, nil
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// notificationRow is the on-disk shape of a notification.
type notificationRow struct {
	ID        string `db:"id"`
	EventID   int64  `db:"event_id"`
	Title     string `db:"title"`
	Message   string `db:"message"`
	Read      int    `db:"read"`
	CreatedAt int64  `db:"created_at"`
}

func (r notificationRow) toModel() model.Notification {
	return model.Notification{
		ID:        r.ID,
		EventID:   r.EventID,
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.Read != 0,
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
