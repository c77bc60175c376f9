package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/live-watch/livewatch/internal/logging"
	"github.com/live-watch/livewatch/internal/normalize"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	defaultPingEvery   = 30 * time.Second
)

var wsLog = logging.Module("live.ws")

// ErrStreamEnded is returned by Run when the relay reports that the
// broadcast is over.
var ErrStreamEnded = errors.New("stream ended")

// ErrPayloadNotObject marks a data event whose body was not a JSON object.
var ErrPayloadNotObject = errors.New("payload is not a JSON object")

// frame is one relay message: {"event": "<name>", "data": {...}}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSOptions tunes a WSClient. Zero values pick the defaults.
type WSOptions struct {
	DialAttempts int
	PingInterval time.Duration
	BaseDelay    time.Duration
	Dialer       *websocket.Dialer
}

// WSClient reads a room's events from a JSON websocket relay.
type WSClient struct {
	Handlers

	url  string
	opts WSOptions

	mu      sync.Mutex
	writeMu sync.Mutex // serialises conn writes (ping, close)
	conn    *websocket.Conn

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWSClient creates a client for room on the relay at rawURL. The room is
// passed as the uniqueId query parameter.
func NewWSClient(rawURL, room string, opts WSOptions) (*WSClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("relay url: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("uniqueId", room)
	u.RawQuery = q.Encode()

	if opts.DialAttempts < 1 {
		opts.DialAttempts = 1
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingEvery
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = reconnectBaseDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &WSClient{url: u.String(), opts: opts, stop: make(chan struct{})}, nil
}

// Stop asks Run to close the connection and return.
func (c *WSClient) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *WSClient) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	go c.pingLoop(ctx, conn)
	go func() {
		<-ctx.Done()
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		conn.Close()
	}()

	c.Emit(Event{Type: Connect, Payload: normalize.FromMap(map[string]any{})})
	err = c.readLoop(conn)
	conn.Close()

	if ctx.Err() != nil {
		c.Emit(Event{Type: Disconnect, Payload: normalize.FromMap(map[string]any{})})
		return nil
	}
	c.Emit(Event{Type: Disconnect, Payload: normalize.FromMap(map[string]any{}), Err: err})
	return err
}

// dial connects with exponential backoff, giving up after DialAttempts.
func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	delay := c.opts.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.opts.DialAttempts; attempt++ {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == c.opts.DialAttempts {
			break
		}
		wsLog.WithError(err).Warnf("dial attempt %d/%d failed, retry in %v", attempt, c.opts.DialAttempts, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, reconnectMaxDelay)
	}
	return nil, fmt.Errorf("connecting to relay: %w", lastErr)
}

func (c *WSClient) readLoop(conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			wsLog.WithError(err).Debug("skipping malformed frame")
			continue
		}
		if foldName(f.Event) == "streamend" {
			return ErrStreamEnded
		}
		ev, ok := decodeFrame(f)
		if !ok {
			wsLog.Debugf("skipping unhandled event %q", f.Event)
			continue
		}
		c.Emit(ev)
	}
}

// decodeFrame turns a relay frame into an Event. Numbers are kept as
// json.Number so large ids survive.
func decodeFrame(f frame) (Event, bool) {
	var (
		data   map[string]any
		badErr error
	)
	if len(f.Data) > 0 && !bytes.Equal(f.Data, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(f.Data))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			// Forwarded with Err set so the dispatcher reports it as
			// malformed.
			data = map[string]any{"raw": string(f.Data)}
			badErr = ErrPayloadNotObject
		}
	}
	if data == nil {
		data = map[string]any{}
	}

	t, ok := ParseEventType(f.Event)
	if !ok && foldName(f.Event) == "social" {
		t, ok = socialType(data)
	}
	if !ok || t == Connect || t == Disconnect {
		return Event{}, false
	}
	return Event{Type: t, Payload: normalize.FromMap(data), Time: time.Now(), Err: badErr}, true
}

// socialType splits the relay's combined social event into follow and
// share by its display type.
func socialType(data map[string]any) (EventType, bool) {
	display := strings.ToLower(normalize.String(normalize.FromMap(data), []string{"displayType", "display_type"}, ""))
	switch {
	case strings.Contains(display, "share"):
		return Share, true
	case strings.Contains(display, "follow"):
		return Follow, true
	}
	return 0, false
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
