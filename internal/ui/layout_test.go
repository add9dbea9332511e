package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestLayout_ContentHeight(t *testing.T) {
	assert.Equal(t, 22, NewLayout(80, 24).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 1).ContentHeight())
}

func TestLayout_HeaderFillsWidth(t *testing.T) {
	l := NewLayout(60, 10)
	header := l.RenderHeader("Reminders", "synced 5m ago")

	assert.Equal(t, 60, lipgloss.Width(header))
	assert.Contains(t, header, "Reminders")
	assert.Contains(t, header, "synced 5m ago")
}

func TestLayout_StatusBarWithoutNotice(t *testing.T) {
	l := NewLayout(40, 10)
	bar := l.RenderStatusBar("q quit", "")

	assert.Equal(t, 40, lipgloss.Width(bar))
	assert.Contains(t, bar, "q quit")
}

func TestLayout_FrameHeight(t *testing.T) {
	l := NewLayout(40, 10)
	frame := l.RenderWithFrame(
		l.RenderHeader("h", ""),
		"one\ntwo",
		l.RenderStatusBar("s", ""),
	)
	assert.Len(t, strings.Split(frame, "\n"), 10)
}
