// Package toggles renders the per-category display switches.
package toggles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/live-watch/livewatch/internal/event"
	"github.com/live-watch/livewatch/internal/theme"
)

// Model holds the switches and the cursor. While Locked the switches
// cannot be flipped; the TUI locks them for as long as a session may
// still be running.
type Model struct {
	Values  map[event.Category]bool
	Cursor  int
	Locked  bool
	Focused bool
}

// New creates the switches from values. Missing categories default to on.
func New(values map[event.Category]bool) Model {
	m := Model{Values: make(map[event.Category]bool, len(event.Toggleable))}
	for _, c := range event.Toggleable {
		v, ok := values[c]
		m.Values[c] = v || !ok
	}
	return m
}

// Up moves the cursor up, wrapping around.
func (m *Model) Up() {
	n := len(event.Toggleable)
	m.Cursor = (m.Cursor - 1 + n) % n
}

// Down moves the cursor down, wrapping around.
func (m *Model) Down() {
	m.Cursor = (m.Cursor + 1) % len(event.Toggleable)
}

// Selected returns the category under the cursor.
func (m Model) Selected() event.Category {
	return event.Toggleable[m.Cursor]
}

// Toggle flips the selected switch and reports whether it did.
func (m *Model) Toggle() bool {
	if m.Locked {
		return false
	}
	c := m.Selected()
	m.Values[c] = !m.Values[c]
	return true
}

// Snapshot returns a copy of the switch values.
func (m Model) Snapshot() map[event.Category]bool {
	out := make(map[event.Category]bool, len(m.Values))
	for k, v := range m.Values {
		out[k] = v
	}
	return out
}

// View renders one line per switch.
func (m Model) View() string {
	var b strings.Builder
	title := "SHOW"
	if m.Locked {
		title += " (locked while running)"
	}
	b.WriteString(theme.StyleHeader.Render(title))
	for i, c := range event.Toggleable {
		b.WriteString("\n")
		prefix := "  "
		if m.Focused && i == m.Cursor {
			prefix = "> "
		}
		box := "[ ]"
		if m.Values[c] {
			box = "[x]"
		}
		label := lipgloss.NewStyle().Foreground(theme.CategoryColor(c)).Render(theme.CategoryLabel(c))
		line := prefix + box + " " + label
		if m.Locked {
			line = theme.StyleDimmed.Render(prefix+box+" ") + label
		}
		b.WriteString(line)
	}
	return theme.StyleBorder.Padding(0, 1).Render(b.String())
}
