package status

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/live-watch/livewatch/internal/dispatch"
	"github.com/live-watch/livewatch/internal/session"
	"github.com/live-watch/livewatch/internal/theme"
)

const fps = 30

// FrameMsg advances the viewer counter animation by one frame.
type FrameMsg struct{}

// Model holds the status bar state.
type Model struct {
	State session.State
	Room  string
	Stats dispatch.Stats
	Width int

	spinner spinner.Model

	spring    harmonica.Spring
	shown     float64
	velocity  float64
	target    float64
	animating bool
}

// New creates a status bar model.
func New() Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorConnecting)
	return Model{
		spinner: sp,
		spring:  harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.6),
	}
}

// SetState records a session state change. Entering Connecting starts the
// spinner.
func (m *Model) SetState(s session.State) tea.Cmd {
	prev := m.State
	m.State = s
	if s == session.Connecting && prev != session.Connecting {
		return m.spinner.Tick
	}
	return nil
}

// SetStats records fresh counters and retargets the viewer counter.
func (m *Model) SetStats(st dispatch.Stats) tea.Cmd {
	m.Stats = st
	return m.setViewers(st.Viewers)
}

func (m *Model) setViewers(n int) tea.Cmd {
	m.target = float64(n)
	if m.animating || m.settled() {
		return nil
	}
	m.animating = true
	return frame()
}

// Viewers returns the counter value currently on screen.
func (m Model) Viewers() int {
	return int(math.Round(m.shown))
}

func (m Model) settled() bool {
	return math.Abs(m.target-m.shown) < 0.5 && math.Abs(m.velocity) < 0.5
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

// Update drives the spinner and the counter animation.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case FrameMsg:
		m.shown, m.velocity = m.spring.Update(m.shown, m.velocity, m.target)
		if m.settled() {
			m.shown, m.velocity = m.target, 0
			m.animating = false
			return m, nil
		}
		return m, frame()

	case spinner.TickMsg:
		if m.State != session.Connecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	name := m.State.String()
	stateStr := lipgloss.NewStyle().Foreground(theme.StateColor(name)).Render(theme.StateGlyph(name) + " " + name)
	if m.State == session.Connecting {
		stateStr = m.spinner.View() + " " + stateStr
	}

	room := "no room"
	if m.Room != "" {
		room = "@" + m.Room
	}

	total := m.Stats.Total()
	counts := fmt.Sprintf("%d shown  %d filtered  %d skipped", total.Accepted, total.Filtered, total.Failed)
	viewers := lipgloss.NewStyle().Foreground(theme.ColorViewerCount).Render(fmt.Sprintf("%d viewers", m.Viewers()))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := stateStr + sep + room + sep + viewers + sep + counts

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
