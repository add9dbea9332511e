package help

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/reminders/internal/keys"
)

func TestView_ListsCommandsAndStatus(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 60)
	m.SetStatus(Status{Sync: "synced 5m ago", LastResult: "Sync completed successfully", Unread: 2})

	out := m.View()
	assert.Contains(t, out, "Keyboard Shortcuts")
	assert.Contains(t, out, "search <text>")
	assert.Contains(t, out, "synced 5m ago")
	assert.Contains(t, out, "Unread         2")
}

func TestView_OmitsLastPassWhenNone(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 60)
	m.SetStatus(Status{Sync: "sync off"})

	assert.NotContains(t, m.View(), "Last pass")
}
