package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/reminders/internal/model"
)

func TestMigrations_Sequential(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.version)
	}
}

func TestMigrations_LegacyRowsBecomeLocalOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// Build a database at schema v1 with one pre-sync row.
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(migrations[0].sql)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO events (name, date, time, description, recurrence_type)
		VALUES ('Dentist', '2024-03-01', '09:30', 'checkup', 'NONE')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.Get(&version, "SELECT MAX(version) FROM schema_version"))
	assert.Equal(t, len(migrations), version)

	e, err := s.GetEventByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Dentist", e.Name)
	assert.Equal(t, model.SyncLocalOnly, e.SyncStatus)
	assert.Equal(t, model.AlarmUnscheduled, e.AlarmState)
	assert.Nil(t, e.RemoteID)

	unsynced, err := s.GetUnsyncedEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
}

func TestMigrations_ReopenIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	var rows int
	require.NoError(t, s.db.Get(&rows, "SELECT COUNT(*) FROM schema_version"))
	assert.Equal(t, len(migrations), rows)
}
