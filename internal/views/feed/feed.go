// Package feed provides the scrollable event log of the TUI.
package feed

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/live-watch/livewatch/internal/sink"
	"github.com/live-watch/livewatch/internal/theme"
)

const maxEntries = 500

// Model holds the feed lines and the viewport showing them. The viewport
// follows the tail until the operator scrolls up.
type Model struct {
	Entries []sink.Line

	vp viewport.Model
}

// New creates an empty feed.
func New() Model {
	return Model{vp: viewport.New(0, 0)}
}

// SetSize resizes the visible area.
func (m *Model) SetSize(width, height int) {
	if height < 1 {
		height = 1
	}
	m.vp.Width = width
	m.vp.Height = height
	m.refresh(true)
}

// Add appends a line and caps the buffer.
func (m *Model) Add(l sink.Line) {
	m.Entries = append(m.Entries, l)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.refresh(m.vp.AtBottom())
}

// Clear drops every line.
func (m *Model) Clear() {
	m.Entries = nil
	m.refresh(true)
}

// Following reports whether the viewport is pinned to the newest line.
func (m Model) Following() bool {
	return m.vp.AtBottom()
}

func (m *Model) refresh(follow bool) {
	m.vp.SetContent(m.render())
	if follow {
		m.vp.GotoBottom()
	}
}

// Update forwards scroll keys and mouse wheel events to the viewport.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m Model) render() string {
	if len(m.Entries) == 0 {
		return theme.StyleDimmed.Render("  No events yet. Enter a room id and press enter to start.")
	}
	lines := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		ts := theme.StyleTimestamp.Render(e.Time.Format("[15:04:05]"))
		text := lipgloss.NewStyle().Foreground(theme.CategoryColor(e.Category)).Render(e.Text)
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, theme.CategoryGlyph(e.Category), text))
	}
	return strings.Join(lines, "\n")
}

// View renders the visible part of the feed inside a border.
func (m Model) View() string {
	title := theme.StyleHeader.Render(" FEED ")
	info := theme.StyleDimmed.Render(fmt.Sprintf("%d lines", len(m.Entries)))
	if !m.vp.AtBottom() {
		info += theme.StyleDimmed.Render("  ↓ more below")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, title, " ", info)
	return theme.StyleBorder.Render(lipgloss.JoinVertical(lipgloss.Left, header, m.vp.View()))
}
