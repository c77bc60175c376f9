// Package live defines the contract between a session and the external
// client that talks to a streaming platform, plus the adapters for the
// platforms livewatch supports.
package live

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/live-watch/livewatch/internal/normalize"
)

type EventType int

const (
	Connect EventType = iota
	Disconnect
	Comment
	Gift
	Like
	Share
	Follow
	ViewerCount
)

var eventTypeNames = map[EventType]string{
	Connect:     "connect",
	Disconnect:  "disconnect",
	Comment:     "comment",
	Gift:        "gift",
	Like:        "like",
	Share:       "share",
	Follow:      "follow",
	ViewerCount: "viewer_count",
}

// wire names seen from relays, keyed by their folded form.
var eventTypeFromWire = map[string]EventType{
	"connect":      Connect,
	"connected":    Connect,
	"disconnect":   Disconnect,
	"disconnected": Disconnect,
	"comment":      Comment,
	"chat":         Comment,
	"gift":         Gift,
	"like":         Like,
	"share":        Share,
	"follow":       Follow,
	"viewercount":  ViewerCount,
	"roomuser":     ViewerCount,
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseEventType matches a wire event name case- and
// separator-insensitively.
func ParseEventType(name string) (EventType, bool) {
	t, ok := eventTypeFromWire[foldName(name)]
	return t, ok
}

func foldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// Event is one raw event as delivered by a client.
type Event struct {
	Type    EventType
	Payload normalize.Payload
	Time    time.Time
	// Err carries the reason on Disconnect, if any. On a data event it
	// means the payload could not be decoded.
	Err error
}

type Handler func(Event)

// Client drives one connection to a live session. Handlers are registered
// before Run. Run blocks until the connection ends: it returns nil after
// Stop or context cancellation and an error when the connection could not
// be established or failed. Stop never blocks and may be called more than
// once.
type Client interface {
	On(t EventType, h Handler)
	Run(ctx context.Context) error
	Stop()
}

// Handlers is a registry clients embed to implement On.
type Handlers struct {
	mu sync.RWMutex
	m  map[EventType][]Handler
}

func (h *Handlers) On(t EventType, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[EventType][]Handler)
	}
	h.m[t] = append(h.m[t], fn)
}

// Emit calls every handler registered for ev.Type on the calling goroutine.
func (h *Handlers) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.RLock()
	fns := h.m[ev.Type]
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
