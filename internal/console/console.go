// Package console prints the feed as timestamped lines on a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/live-watch/livewatch/internal/sink"
	"github.com/live-watch/livewatch/internal/theme"
	"github.com/mattn/go-isatty"
)

const timeFormat = "15:04:05"

// Writer renders sink lines to out, one per line.
type Writer struct {
	mu    sync.Mutex
	out   io.Writer
	color bool

	renderer *lipgloss.Renderer
}

// New creates a Writer. With color false lines are written without escape
// sequences.
func New(out io.Writer, color bool) *Writer {
	return &Writer{
		out:      out,
		color:    color,
		renderer: lipgloss.NewRenderer(out),
	}
}

// IsTerminal reports whether f is attached to a terminal, which is when
// colored output is wanted.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Deliver writes one line. It has the signature sink.Queue.Run expects.
func (w *Writer) Deliver(l sink.Line) {
	ts := "[" + l.Time.Format(timeFormat) + "]"
	glyph := theme.CategoryGlyph(l.Category)
	text := l.Text
	if w.color {
		ts = w.renderer.NewStyle().Foreground(theme.ColorTimestamp).Render(ts)
		text = w.renderer.NewStyle().Foreground(theme.CategoryColor(l.Category)).Render(text)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "%s %s %s\n", ts, glyph, text)
}

// Run drains q into w until ctx is cancelled, flushing what is left before
// returning.
func (w *Writer) Run(ctx context.Context, q *sink.Queue) {
	q.Run(ctx, w.Deliver)
}
