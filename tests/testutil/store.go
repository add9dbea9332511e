package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/store"
)

// NewTestStore creates a file-backed SQLiteStore in a temp directory with
// all migrations applied. It automatically closes the store when the test
// completes.
func NewTestStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"), opts...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedEvent inserts e and returns its id, failing the test on error. Zero
// fields get the store's defaults.
func SeedEvent(t *testing.T, s *store.SQLiteStore, e model.Event) int64 {
	t.Helper()

	id, err := s.InsertEvent(context.Background(), e)
	if err != nil {
		t.Fatalf("seeding event %q: %v", e.Name, err)
	}
	return id
}
