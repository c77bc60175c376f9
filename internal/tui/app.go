// Package tui is the operator console: room input, display switches, the
// live feed and a status bar, driven by a session controller.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/live-watch/livewatch/internal/dispatch"
	"github.com/live-watch/livewatch/internal/event"
	"github.com/live-watch/livewatch/internal/logging"
	"github.com/live-watch/livewatch/internal/session"
	"github.com/live-watch/livewatch/internal/settings"
	"github.com/live-watch/livewatch/internal/sink"
	"github.com/live-watch/livewatch/internal/theme"
	"github.com/live-watch/livewatch/internal/views/feed"
	"github.com/live-watch/livewatch/internal/views/status"
	"github.com/live-watch/livewatch/internal/views/toggles"
)

var logger = logging.Module("tui")

const statsInterval = 500 * time.Millisecond

// Controller is the part of session.Controller the TUI drives.
type Controller interface {
	Start(room string, cfg settings.SessionConfig) error
	Stop()
	State() session.State
	Room() string
	Stats() (dispatch.Stats, bool)
	OnStateChange(fn func(session.State))
}

// Store persists the session config when a session starts.
type Store interface {
	Save(cfg settings.SessionConfig) error
}

// LineMsg carries one feed line from the sink pump.
type LineMsg sink.Line

type stateChangedMsg struct{}

type statsTickMsg struct{}

// Focus identifies which control receives keys.
type Focus int

const (
	FocusRoom Focus = iota
	FocusToggles
)

// Model is the root Bubble Tea model.
type Model struct {
	ctrl   Controller
	store  Store
	ctx    context.Context
	cancel context.CancelFunc

	// changes is signalled by the controller's state listener. It never
	// blocks, so the controller may be driven from inside Update.
	changes chan struct{}

	keys   KeyMap
	width  int
	height int
	focus  Focus

	room      textinput.Model
	toggles   toggles.Model
	feed      feed.Model
	statusBar status.Model

	showHelp bool
	help     string
}

// New creates the root model with the saved session config.
func New(ctrl Controller, store Store, initial settings.SessionConfig) Model {
	ctx, cancel := context.WithCancel(context.Background())

	input := textinput.New()
	input.Prompt = "Room: "
	input.Placeholder = "@room_id"
	input.CharLimit = 64
	input.Width = 32
	input.SetValue(initial.RoomID)
	input.Focus()

	m := Model{
		ctrl:      ctrl,
		store:     store,
		ctx:       ctx,
		cancel:    cancel,
		changes:   make(chan struct{}, 1),
		keys:      DefaultKeyMap(),
		room:      input,
		toggles:   toggles.New(initial.Toggles),
		feed:      feed.New(),
		statusBar: status.New(),
	}
	changes := m.changes
	ctrl.OnStateChange(func(session.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	return m
}

// Init starts the input cursor, the state watcher and the stats ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForState(), statsTick())
}

func (m Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return stateChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func statsTick() tea.Cmd {
	return tea.Tick(statsInterval, func(time.Time) tea.Msg { return statsTickMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.feed.SetSize(msg.Width-2, m.feedHeight())
		m.help = ""
		if m.showHelp {
			m.help = renderHelp(m.keys, m.helpWidth())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.feed, cmd = m.feed.Update(msg)
		return m, cmd

	case LineMsg:
		m.feed.Add(sink.Line(msg))
		return m, nil

	case stateChangedMsg:
		cmd := m.applyState()
		return m, tea.Batch(cmd, m.waitForState())

	case statsTickMsg:
		var cmd tea.Cmd
		if st, ok := m.ctrl.Stats(); ok {
			cmd = m.statusBar.SetStats(st)
		}
		return m, tea.Batch(cmd, statsTick())

	case status.FrameMsg, spinner.TickMsg:
		var cmd tea.Cmd
		m.statusBar, cmd = m.statusBar.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.room, cmd = m.room.Update(msg)
	return m, cmd
}

func (m *Model) applyState() tea.Cmd {
	s := m.ctrl.State()
	m.statusBar.Room = m.ctrl.Room()
	m.toggles.Locked = s.Busy()
	return m.statusBar.SetState(s)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Interrupt) {
		return m.quit()
	}

	if m.showHelp {
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		m.start()
		return m, nil

	case key.Matches(msg, m.keys.Stop):
		wasActive := m.ctrl.State().Active()
		m.ctrl.Stop()
		if wasActive {
			m.system("Stopped")
		}
		return m, nil

	case key.Matches(msg, m.keys.Focus):
		m.setFocus((m.focus + 1) % 2)
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.feed.Clear()
		return m, nil

	case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.feed, cmd = m.feed.Update(msg)
		return m, cmd
	}

	if m.focus == FocusRoom {
		var cmd tea.Cmd
		m.room, cmd = m.room.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		if m.help == "" {
			m.help = renderHelp(m.keys, m.helpWidth())
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.toggles.Up()

	case key.Matches(msg, m.keys.Down):
		m.toggles.Down()

	case key.Matches(msg, m.keys.Toggle):
		if !m.toggles.Toggle() {
			m.system("Stop the session before changing what is shown.")
		}
	}
	return m, nil
}

func (m *Model) setFocus(f Focus) {
	m.focus = f
	m.toggles.Focused = f == FocusToggles
	if f == FocusRoom {
		m.room.Focus()
	} else {
		m.room.Blur()
	}
}

// start validates the room, saves the config and starts a session. The
// controller ignores starts while a session is already running.
func (m *Model) start() {
	room := settings.NormalizeRoomID(m.room.Value())
	if room == "" {
		m.system("Enter a room id before starting.")
		return
	}
	switch s := m.ctrl.State(); {
	case s == session.Stopping:
		m.system("The previous session is still stopping.")
		return
	case s.Active():
		return
	}

	cfg := settings.SessionConfig{RoomID: room, Toggles: m.toggles.Snapshot()}
	if err := m.store.Save(cfg); err != nil {
		logger.WithError(err).Warn("saving settings failed")
		m.system("Could not save settings: " + err.Error())
	}
	if err := m.ctrl.Start(room, cfg); err != nil {
		logger.WithError(err).Error("starting session failed")
		m.system("Could not start: " + err.Error())
	}
	m.toggles.Locked = m.ctrl.State().Busy()
}

func (m *Model) system(text string) {
	m.feed.Add(sink.Line{Time: time.Now(), Category: event.System, Text: text})
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	return m, tea.Quit
}

// feedHeight is what is left for the feed after the status bar, the
// controls row, the footer and the feed's own frame.
func (m Model) feedHeight() int {
	h := m.height - 3 - 8 - 1 - 3
	if h < 3 {
		h = 3
	}
	return h
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showHelp {
		return m.renderHelpOverlay()
	}

	hint := theme.StyleDimmed.Render("enter:start  ctrl+x:stop")
	if m.toggles.Locked {
		hint = theme.StyleDimmed.Render("ctrl+x:stop the session to edit switches")
	}
	roomPanel := theme.StyleBorder.Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, m.room.View(), hint))
	controls := lipgloss.JoinHorizontal(lipgloss.Top, m.toggles.View(), " ", roomPanel)

	sections := []string{
		m.statusBar.View(),
		controls,
		m.feed.View(),
		theme.StyleDimmed.Render("  tab:focus  space:flip  pgup/pgdn:scroll  ctrl+l:clear  ?:help  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) helpWidth() int {
	w := m.width - 8
	if w < 30 {
		w = 30
	}
	return w
}

func (m Model) renderHelpOverlay() string {
	panel := lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(m.help + "\n" + theme.StyleDimmed.Render("esc:close"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}
