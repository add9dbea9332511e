package keys

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestDefaultKeyMap_Bindings(t *testing.T) {
	k := DefaultKeyMap()

	tests := []struct {
		name    string
		binding key.Binding
		key     string
	}{
		{"new", k.New, "n"},
		{"delete", k.Delete, "d"},
		{"sync", k.Sync, "s"},
		{"today", k.Today, "t"},
		{"search", k.Search, "/"},
		{"command", k.Command, ":"},
		{"help", k.Help, "?"},
		{"quit", k.Quit, "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			assert.True(t, key.Matches(msg, tt.binding))
		})
	}
}

func TestFullHelp_CoversShortHelp(t *testing.T) {
	k := DefaultKeyMap()

	var all []string
	for _, group := range k.FullHelp() {
		for _, b := range group {
			all = append(all, b.Help().Key)
		}
	}
	for _, b := range k.ShortHelp() {
		assert.Contains(t, all, b.Help().Key)
	}
}
