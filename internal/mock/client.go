// Package mock provides a synthetic live client for demos and tests. It
// speaks the live.Client contract and deliberately mixes payload naming
// styles the way real relays do.
package mock

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/live-watch/livewatch/internal/live"
	"github.com/live-watch/livewatch/internal/normalize"
)

// ErrConnectionLost is returned by Run when a simulated drop is configured.
var ErrConnectionLost = errors.New("mock: connection lost")

type viewer struct {
	uniqueID string
	nickname string
}

var viewers = []viewer{
	{"minh.anh", "Minh Anh"},
	{"tuan_dev", "Tuấn"},
	{"alice", "Alice"},
	{"bob.live", "Bob"},
	{"lan_huong", "Lan Hương"},
	{"guest9021", ""},
	{"quoc.bao", "Quốc Bảo"},
	{"carol", "Carol"},
}

var comments = []string{
	"hello from Hanoi",
	"first time here",
	"what song is this?",
	"xin chào!",
	"love this stream",
	"can you say hi to me?",
	"gg",
	"where are you streaming from?",
}

var giftNames = []string{"Rose", "TikTok", "Finger Heart", "Doughnut", "Galaxy", "Lion"}

// Typed payloads, exercised through the attribute-bag path.
type typedUser struct {
	UniqueID string `json:"uniqueId"`
	Nickname string
}

type typedGift struct {
	Name string
}

type typedGiftEvent struct {
	User        typedUser
	Gift        typedGift
	RepeatCount int
}

type typedComment struct {
	User    typedUser
	Comment string
}

// Options tunes the generator.
type Options struct {
	Interval time.Duration
	// Seed fixes the random sequence; zero picks a time-based seed.
	Seed int64
	// DropAfter simulates a lost connection after that many ticks.
	DropAfter int
	// MalformedEvery emits a gift without its gift object every n ticks.
	MalformedEvery int
}

// Client generates a live stream for one room.
type Client struct {
	live.Handlers

	room string
	opts Options
	rng  *rand.Rand

	viewers    int
	totalLikes int

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(room string, opts Options) *Client {
	if opts.Interval <= 0 {
		opts.Interval = 400 * time.Millisecond
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Client{
		room:    room,
		opts:    opts,
		rng:     rand.New(rand.NewSource(seed)),
		viewers: 120,
		stop:    make(chan struct{}),
	}
}

func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) Run(ctx context.Context) error {
	select {
	case <-c.stop:
		return nil
	case <-ctx.Done():
		return nil
	default:
	}

	c.Emit(live.Event{Type: live.Connect, Payload: normalize.FromMap(map[string]any{"room": c.room})})

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			c.Emit(live.Event{Type: live.Disconnect})
			return nil
		case <-c.stop:
			c.Emit(live.Event{Type: live.Disconnect})
			return nil
		case <-ticker.C:
			tick++
			for _, ev := range c.advance(tick) {
				c.Emit(ev)
			}
			if c.opts.DropAfter > 0 && tick >= c.opts.DropAfter {
				c.Emit(live.Event{Type: live.Disconnect, Err: ErrConnectionLost})
				return ErrConnectionLost
			}
		}
	}
}

// advance produces the events for one tick.
func (c *Client) advance(tick int) []live.Event {
	now := time.Now()
	var out []live.Event

	if tick%5 == 0 {
		c.viewers += c.rng.Intn(60) - 20
		if c.viewers < 1 {
			c.viewers = 1
		}
		out = append(out, live.Event{Type: live.ViewerCount, Time: now, Payload: normalize.FromMap(map[string]any{
			"viewerCount": c.viewers,
		})})
	}

	if c.opts.MalformedEvery > 0 && tick%c.opts.MalformedEvery == 0 {
		v := c.pickViewer()
		out = append(out, live.Event{Type: live.Gift, Time: now, Payload: normalize.FromMap(map[string]any{
			"user": c.userMap(v, 0),
		})})
		return out
	}

	v := c.pickViewer()
	style := c.rng.Intn(3)
	switch roll := c.rng.Intn(100); {
	case roll < 45:
		out = append(out, c.comment(v, style, now))
	case roll < 70:
		likes := 1 + c.rng.Intn(15)
		c.totalLikes += likes
		out = append(out, live.Event{Type: live.Like, Time: now, Payload: normalize.FromMap(map[string]any{
			"user":           c.userMap(v, style),
			"likeCount":      likes,
			"totalLikeCount": c.totalLikes,
		})})
	case roll < 82:
		out = append(out, c.gift(v, style, now))
	case roll < 90:
		out = append(out, live.Event{Type: live.Follow, Time: now, Payload: normalize.FromMap(map[string]any{
			"user": c.userMap(v, style),
		})})
	default:
		out = append(out, live.Event{Type: live.Share, Time: now, Payload: normalize.FromMap(map[string]any{
			"user": c.userMap(v, style),
		})})
	}
	return out
}

func (c *Client) pickViewer() viewer {
	return viewers[c.rng.Intn(len(viewers))]
}

// userMap renders v in one of the naming styles relays use.
func (c *Client) userMap(v viewer, style int) map[string]any {
	m := map[string]any{}
	switch style {
	case 1:
		m["unique_id"] = v.uniqueID
		if v.nickname != "" {
			m["nickName"] = v.nickname
		}
	default:
		m["uniqueId"] = v.uniqueID
		if v.nickname != "" {
			m["nickname"] = v.nickname
		}
	}
	return m
}

func (c *Client) comment(v viewer, style int, now time.Time) live.Event {
	text := comments[c.rng.Intn(len(comments))]
	if style == 2 {
		a, _ := normalize.Struct(typedComment{
			User:    typedUser{UniqueID: v.uniqueID, Nickname: v.nickname},
			Comment: text,
		})
		return live.Event{Type: live.Comment, Time: now, Payload: normalize.FromAttrs(a)}
	}
	key := "comment"
	if style == 1 {
		key = "text"
	}
	return live.Event{Type: live.Comment, Time: now, Payload: normalize.FromMap(map[string]any{
		"user": c.userMap(v, style),
		key:    text,
	})}
}

func (c *Client) gift(v viewer, style int, now time.Time) live.Event {
	name := giftNames[c.rng.Intn(len(giftNames))]
	count := 1 + c.rng.Intn(10)
	switch style {
	case 2:
		a, _ := normalize.Struct(typedGiftEvent{
			User:        typedUser{UniqueID: v.uniqueID, Nickname: v.nickname},
			Gift:        typedGift{Name: name},
			RepeatCount: count,
		})
		return live.Event{Type: live.Gift, Time: now, Payload: normalize.FromAttrs(a)}
	case 1:
		return live.Event{Type: live.Gift, Time: now, Payload: normalize.FromMap(map[string]any{
			"user": c.userMap(v, style),
			"gift": map[string]any{"gift_name": name, "repeat_count": count},
		})}
	default:
		return live.Event{Type: live.Gift, Time: now, Payload: normalize.FromMap(map[string]any{
			"user":        c.userMap(v, style),
			"gift":        map[string]any{"name": name},
			"repeatCount": count,
		})}
	}
}
