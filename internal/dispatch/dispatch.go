// Package dispatch turns raw live events into feed lines: it filters by the
// operator's toggles, normalizes payloads and writes the result to a sink.
package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/live-watch/livewatch/internal/event"
	"github.com/live-watch/livewatch/internal/live"
	"github.com/live-watch/livewatch/internal/logging"
	"github.com/live-watch/livewatch/internal/normalize"
	"github.com/live-watch/livewatch/internal/settings"
	"github.com/live-watch/livewatch/internal/sink"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrMissingGift is reported for gift events without a gift object.
var ErrMissingGift = errors.New("gift event has no gift object")

// Options adjusts how a Dispatcher renders events. Log defaults to the
// dispatch module logger.
type Options struct {
	// FlagNewViewers announces a user's first comment of the session.
	FlagNewViewers bool
	Log            *logrus.Entry
}

// Dispatcher handles the events of one session. It copies the session
// config on construction, so later edits do not affect a running session.
type Dispatcher struct {
	cfg  settings.SessionConfig
	sink sink.Sink
	opts Options
	log  *logrus.Entry

	mu    sync.Mutex
	seen  map[string]struct{}
	stats Stats
}

// New returns a dispatcher for one session that writes to s.
func New(cfg settings.SessionConfig, s sink.Sink, opts Options) *Dispatcher {
	l := opts.Log
	if l == nil {
		l = logging.Module("dispatch")
	}
	return &Dispatcher{
		cfg:   cfg.Clone(),
		sink:  s,
		opts:  opts,
		log:   l,
		seen:  make(map[string]struct{}),
		stats: newStats(),
	}
}

// Category maps a live event type to its feed category.
func Category(t live.EventType) (event.Category, bool) {
	switch t {
	case live.Comment:
		return event.Comment, true
	case live.Gift:
		return event.Gift, true
	case live.Like:
		return event.Like, true
	case live.Share:
		return event.Share, true
	case live.Follow:
		return event.Follow, true
	case live.ViewerCount:
		return event.ViewerCount, true
	case live.Connect:
		return event.Connect, true
	case live.Disconnect:
		return event.Disconnect, true
	}
	return 0, false
}

// Handle processes one data event. It never panics and never returns an
// error: malformed events become a system line.
func (d *Dispatcher) Handle(ev live.Event) {
	cat, ok := Category(ev.Type)
	if !ok || cat == event.Connect || cat == event.Disconnect {
		return
	}
	if !d.cfg.Enabled(cat) {
		d.record(cat, outcomeFiltered)
		return
	}

	n, err := normalizeEvent(cat, ev)
	if err != nil {
		d.record(cat, outcomeFailed)
		err = errors.Wrapf(err, "normalizing %s event", cat)
		d.log.WithError(err).Warn("dropping malformed event")
		d.sink.Write(stamp(ev.Time), event.System, fmt.Sprintf("Skipped malformed %s event: %v", cat, errors.Cause(err)))
		return
	}

	if cat == event.Comment && d.opts.FlagNewViewers && d.firstSeen(n.UserID) {
		d.sink.Write(n.Time, event.Comment, event.NewViewerLine(n))
	}
	d.sink.Write(n.Time, cat, n.Line())
	d.record(cat, outcomeAccepted)
	if cat == event.ViewerCount {
		d.mu.Lock()
		d.stats.Viewers = n.Viewers
		d.mu.Unlock()
	}
}

// Connected writes the connect line for room.
func (d *Dispatcher) Connected(room string, at time.Time) {
	n := event.Normalized{Category: event.Connect, Time: stamp(at), Room: room}
	d.sink.Write(n.Time, event.Connect, n.Line())
	d.record(event.Connect, outcomeAccepted)
}

// Disconnected writes the connection-lost line, with reason when non-nil.
func (d *Dispatcher) Disconnected(at time.Time, reason error) {
	n := event.Normalized{Category: event.Disconnect, Time: stamp(at)}
	if reason != nil {
		n.Text = reason.Error()
	}
	d.sink.Write(n.Time, event.Disconnect, n.Line())
	d.record(event.Disconnect, outcomeAccepted)
}

// System writes a diagnostic line.
func (d *Dispatcher) System(at time.Time, msg string) {
	d.sink.Write(stamp(at), event.System, msg)
	d.record(event.System, outcomeAccepted)
}

// firstSeen records uid and reports whether it was new this session.
func (d *Dispatcher) firstSeen(uid string) bool {
	if uid == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[uid]; ok {
		return false
	}
	d.seen[uid] = struct{}{}
	d.stats.NewViewers++
	return true
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func nonBlank(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// normalizeEvent resolves every field of cat from ev's payload. Accessor
// panics are turned into errors here.
func normalizeEvent(cat event.Category, ev live.Event) (n event.Normalized, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	if ev.Err != nil {
		return n, ev.Err
	}

	p := ev.Payload
	n = event.Normalized{
		Category:    cat,
		Time:        stamp(ev.Time),
		Nickname:    event.DefaultNickname,
		GiftName:    event.DefaultGiftName,
		RepeatCount: 1,
	}

	if cat != event.ViewerCount {
		user, ok := normalize.Sub(p, normalize.UserKeys)
		if !ok {
			user = p
		}
		n.UserID = normalize.String(user, normalize.UserIDKeys, "")
		n.Nickname = nonBlank(normalize.String(user, normalize.NicknameKeys, ""), event.DefaultNickname)
	}

	switch cat {
	case event.Comment:
		n.Text = normalize.String(p, normalize.CommentKeys, "")
	case event.Gift:
		gift, ok := normalize.Sub(p, normalize.GiftKeys)
		if !ok {
			return n, ErrMissingGift
		}
		n.GiftName = nonBlank(normalize.String(gift, normalize.GiftNameKeys, ""), event.DefaultGiftName)
		count, err := repeatCount(gift, p)
		if err != nil {
			return n, err
		}
		if count > 1 {
			n.RepeatCount = count
		}
	case event.Like:
		if n.LikeCount, err = normalize.Int(p, normalize.LikeCountKeys, 0); err != nil {
			return n, err
		}
		if n.TotalLikes, err = normalize.Int(p, normalize.TotalLikeKeys, 0); err != nil {
			return n, err
		}
	case event.ViewerCount:
		if n.Viewers, err = normalize.Int(p, normalize.ViewerCountKeys, 0); err != nil {
			return n, err
		}
	}
	return n, nil
}

// repeatCount prefers the gift object's count and falls back to the event
// root.
func repeatCount(gift, root normalize.Payload) (int, error) {
	if normalize.Resolve(gift, normalize.RepeatCountKeys, nil) != nil {
		return normalize.Int(gift, normalize.RepeatCountKeys, 1)
	}
	return normalize.Int(root, normalize.RootRepeatKeys, 1)
}
