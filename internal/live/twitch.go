package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/live-watch/livewatch/internal/logging"
	"github.com/live-watch/livewatch/internal/normalize"
)

var twitchLog = logging.Module("live.twitch")

// ircConn is the part of the go-twitch-irc client TwitchClient drives.
type ircConn interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnUserNoticeMessage(func(twitch.UserNoticeMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// TwitchClient watches a Twitch channel's chat over IRC. Chat lines become
// comments, cheers become gifts, subscriptions become follows or gifts and
// raids become shares.
type TwitchClient struct {
	Handlers

	channel   string
	irc       ircConn
	connected atomic.Bool

	stopped  chan struct{}
	stopOnce sync.Once

	// closeGrace bounds how long Run waits for a connection that was
	// stopped before the server's welcome.
	closeGrace time.Duration
}

const (
	disconnectRetry   = 50 * time.Millisecond
	defaultCloseGrace = 2 * time.Second
)

// NewTwitchClient joins channel anonymously unless username is set.
func NewTwitchClient(channel, username, oauthToken string) *TwitchClient {
	var irc *twitch.Client
	if username == "" {
		irc = twitch.NewAnonymousClient()
	} else {
		irc = twitch.NewClient(username, oauthToken)
	}
	return newTwitchClient(channel, irc)
}

func newTwitchClient(channel string, irc ircConn) *TwitchClient {
	c := &TwitchClient{
		channel:    strings.ToLower(strings.TrimPrefix(channel, "#")),
		irc:        irc,
		stopped:    make(chan struct{}),
		closeGrace: defaultCloseGrace,
	}
	irc.OnConnect(func() {
		if c.isStopped() {
			twitchLog.Debug("welcome arrived after stop, disconnecting")
			go c.disconnect()
			return
		}
		twitchLog.Infof("connected, joined #%s", c.channel)
		// go-twitch-irc reconnects on its own; announce only the first.
		if c.connected.CompareAndSwap(false, true) {
			c.Emit(Event{Type: Connect, Payload: normalize.FromMap(map[string]any{})})
		}
	})
	irc.OnPrivateMessage(func(m twitch.PrivateMessage) {
		for _, ev := range privateMessageEvents(m) {
			c.Emit(ev)
		}
	})
	irc.OnUserNoticeMessage(func(m twitch.UserNoticeMessage) {
		if ev, ok := userNoticeEvent(m); ok {
			c.Emit(ev)
		}
	})
	return c
}

func (c *TwitchClient) Run(ctx context.Context) error {
	if c.isStopped() {
		return nil
	}
	c.irc.Join(c.channel)

	errCh := make(chan error, 1)
	go func() { errCh <- c.irc.Connect() }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		c.Stop()
		err = c.awaitClose(errCh)
	case <-c.stopped:
		err = c.awaitClose(errCh)
	}

	wasConnected := c.connected.Load()
	if errors.Is(err, twitch.ErrClientDisconnected) {
		err = nil
	}
	if wasConnected {
		c.Emit(Event{Type: Disconnect, Payload: normalize.FromMap(map[string]any{}), Err: err})
	}
	return err
}

// Stop may be called before Run or while the connection is still being
// opened. go-twitch-irc refuses Disconnect until the server's welcome, so
// Run keeps retrying and OnConnect drops a connection that opens late.
func (c *TwitchClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		go c.disconnect()
	})
}

func (c *TwitchClient) isStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

func (c *TwitchClient) disconnect() {
	if err := c.irc.Disconnect(); err != nil {
		twitchLog.WithError(err).Debug("disconnect")
	}
}

// awaitClose retries Disconnect until Connect returns. After closeGrace Run
// stops waiting and the retries carry on in the background.
func (c *TwitchClient) awaitClose(errCh <-chan error) error {
	done := make(chan error, 1)
	go func() {
		tick := time.NewTicker(disconnectRetry)
		defer tick.Stop()
		for {
			select {
			case err := <-errCh:
				done <- err
				return
			case <-tick.C:
				c.disconnect()
			}
		}
	}()

	grace := time.NewTimer(c.closeGrace)
	defer grace.Stop()
	select {
	case err := <-done:
		return err
	case <-grace.C:
		twitchLog.Warnf("connection to #%s still opening %v after stop, leaving it to close in the background", c.channel, c.closeGrace)
		return nil
	}
}

func twitchUser(u twitch.User) map[string]any {
	nick := u.DisplayName
	if nick == "" {
		nick = u.Name
	}
	return map[string]any{
		"userId":   u.ID,
		"uniqueId": u.Name,
		"nickname": nick,
	}
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// privateMessageEvents maps a chat line. A cheer yields a gift followed by
// the comment that carried it.
func privateMessageEvents(m twitch.PrivateMessage) []Event {
	user := twitchUser(m.User)
	at := eventTime(m.Time)
	var out []Event
	if m.Bits > 0 {
		out = append(out, Event{
			Type: Gift,
			Time: at,
			Payload: normalize.FromMap(map[string]any{
				"user": user,
				"gift": map[string]any{"name": "Bits", "repeat_count": m.Bits},
			}),
		})
	}
	out = append(out, Event{
		Type: Comment,
		Time: at,
		Payload: normalize.FromMap(map[string]any{
			"user":    user,
			"comment": m.Message,
			"tags":    m.Tags,
		}),
	})
	return out
}

// userNoticeEvent maps USERNOTICE by its msg-id.
func userNoticeEvent(m twitch.UserNoticeMessage) (Event, bool) {
	user := twitchUser(m.User)
	at := eventTime(m.Time)
	params := make(map[string]any, len(m.MsgParams))
	for k, v := range m.MsgParams {
		params[k] = v
	}

	switch m.MsgID {
	case "sub", "resub":
		return Event{Type: Follow, Time: at, Payload: normalize.FromMap(map[string]any{
			"user":   user,
			"params": params,
		})}, true
	case "subgift", "anonsubgift", "submysterygift", "anonsubmysterygift":
		count := m.MsgParams["msg-param-mass-gift-count"]
		if count == "" {
			count = "1"
		}
		return Event{Type: Gift, Time: at, Payload: normalize.FromMap(map[string]any{
			"user": user,
			"gift": map[string]any{"name": "Gift Sub", "repeat_count": count},
		})}, true
	case "raid":
		return Event{Type: Share, Time: at, Payload: normalize.FromMap(map[string]any{
			"user":        user,
			"viewerCount": m.MsgParams["msg-param-viewerCount"],
		})}, true
	}
	return Event{}, false
}
