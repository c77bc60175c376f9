package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/live-watch/livewatch/internal/settings"
	"github.com/live-watch/livewatch/internal/sink"
)

// Sender is the part of tea.Program the pump needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Pump forwards queued lines to p in order until ctx is cancelled. It is
// the only goroutine that sends feed lines into the program.
func Pump(ctx context.Context, q *sink.Queue, p Sender) {
	q.Run(ctx, func(l sink.Line) {
		p.Send(LineMsg(l))
	})
}

// Run shows the TUI until the operator quits. Lines written to q appear in
// the feed.
func Run(ctrl Controller, store Store, initial settings.SessionConfig, q *sink.Queue) error {
	p := tea.NewProgram(New(ctrl, store, initial), tea.WithAltScreen(), tea.WithMouseCellMotion())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Pump(ctx, q, p)
	}()

	_, err := p.Run()
	cancel()
	<-done
	return err
}
