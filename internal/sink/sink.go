// Package sink carries rendered feed lines from the session worker to the
// presentation goroutine.
package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/live-watch/livewatch/internal/event"
	"github.com/live-watch/livewatch/internal/logging"
	"github.com/sirupsen/logrus"
)

// Sink receives one line per accepted event. Write must not block the
// caller on presentation work.
type Sink interface {
	Write(ts time.Time, c event.Category, text string)
}

// Func adapts a plain function to Sink.
type Func func(ts time.Time, c event.Category, text string)

func (f Func) Write(ts time.Time, c event.Category, text string) { f(ts, c, text) }

// Line is a queued feed line.
type Line struct {
	Time     time.Time
	Category event.Category
	Text     string
}

// Queue is a FIFO between any number of writers and a single reader. Write
// never blocks. With max > 0 the oldest pending lines are dropped once the
// backlog exceeds max.
type Queue struct {
	mu      sync.Mutex
	pending []Line
	max     int
	notify  chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewQueue creates a queue. max <= 0 means unbounded.
func NewQueue(max int) *Queue {
	return &Queue{
		max:    max,
		notify: make(chan struct{}, 1),
	}
}

func (q *Queue) Write(ts time.Time, c event.Category, text string) {
	q.mu.Lock()
	q.pending = append(q.pending, Line{Time: ts, Category: c, Text: text})
	if q.max > 0 && len(q.pending) > q.max {
		over := len(q.pending) - q.max
		q.pending = append(q.pending[:0], q.pending[over:]...)
		q.dropped.Add(uint64(over))
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Run delivers queued lines in order until ctx is cancelled, then delivers
// whatever is still pending and returns. A panicking deliver is counted and
// the line is skipped.
func (q *Queue) Run(ctx context.Context, deliver func(Line)) {
	for {
		batch := q.take()
		for _, l := range batch {
			q.deliver(deliver, l)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			q.Flush(deliver)
			return
		case <-q.notify:
		}
	}
}

// Flush delivers everything currently pending on the calling goroutine.
func (q *Queue) Flush(deliver func(Line)) {
	for _, l := range q.take() {
		q.deliver(deliver, l)
	}
}

func (q *Queue) take() []Line {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *Queue) deliver(fn func(Line), l Line) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			logger.WithField("panic", r).Warn("sink delivery failed")
		}
	}()
	fn(l)
}

// Pending returns the current backlog length.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped returns how many lines were discarded because of the cap.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Failed returns how many deliveries panicked.
func (q *Queue) Failed() uint64 { return q.failed.Load() }

var logger = logging.Module("sink")

// Tee writes every line to each of sinks in turn.
func Tee(sinks ...Sink) Sink {
	return Func(func(ts time.Time, c event.Category, text string) {
		for _, s := range sinks {
			s.Write(ts, c, text)
		}
	})
}

// Log records feed lines at debug level, so the rotated log file keeps a
// trace of what the operator saw.
func Log(entry *logrus.Entry) Sink {
	return Func(func(ts time.Time, c event.Category, text string) {
		entry.WithFields(logrus.Fields{
			"category": c.String(),
			"at":       ts.Format(time.RFC3339),
		}).Debug(text)
	})
}
