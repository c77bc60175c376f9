// Package session owns the lifecycle of the one live connection livewatch
// holds at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/live-watch/livewatch/internal/dispatch"
	"github.com/live-watch/livewatch/internal/live"
	"github.com/live-watch/livewatch/internal/logging"
	"github.com/live-watch/livewatch/internal/settings"
	"github.com/live-watch/livewatch/internal/sink"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyRoom = errors.New("room id is empty")
	ErrStopping  = errors.New("previous session is still stopping")
)

const defaultStopTimeout = 5 * time.Second

var logger = logging.Module("session")

// ClientFactory builds a fresh live client for room.
type ClientFactory func(room string) (live.Client, error)

// Options tunes a Controller. The zero value is usable.
type Options struct {
	// StopTimeout bounds how long Stopping may last before the worker is
	// abandoned and the controller returns to Idle.
	StopTimeout    time.Duration
	FlagNewViewers bool
}

// run is one generation: everything that belongs to a single Start.
type run struct {
	id         string
	room       string
	client     live.Client
	dispatcher *dispatch.Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
	log        *logrus.Entry
}

// Controller starts and stops sessions. All methods are safe for concurrent
// use and none of them block on the live client.
type Controller struct {
	factory ClientFactory
	sink    sink.Sink
	opts    Options

	mu        sync.Mutex
	state     State
	cur       *run
	listeners []func(State)
}

// NewController returns an Idle controller that builds one client per
// session with factory and renders events to s.
func NewController(factory ClientFactory, s sink.Sink, opts Options) *Controller {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	return &Controller{factory: factory, sink: s, opts: opts}
}

// OnStateChange registers fn to be called after every transition. It is
// invoked outside the controller's lock, possibly from the worker
// goroutine.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the room of the current or last session.
func (c *Controller) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.room
}

// Stats returns the counters of the current or last session.
func (c *Controller) Stats() (dispatch.Stats, bool) {
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r == nil {
		return dispatch.Stats{}, false
	}
	return r.dispatcher.Stats(), true
}

// Start connects to roomID with cfg's toggles. It is a no-op while a
// session is connecting or connected and fails with ErrStopping while the
// previous one is shutting down.
func (c *Controller) Start(roomID string, cfg settings.SessionConfig) error {
	room := settings.NormalizeRoomID(roomID)
	if room == "" {
		return ErrEmptyRoom
	}

	c.mu.Lock()
	switch c.state {
	case Connecting, Connected:
		c.mu.Unlock()
		return nil
	case Stopping:
		c.mu.Unlock()
		return ErrStopping
	}

	client, err := c.factory(room)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("creating live client: %w", err)
	}

	id := uuid.NewString()
	log := logger.WithFields(logrus.Fields{"run": id, "room": room})
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     id,
		room:   room,
		client: client,
		dispatcher: dispatch.New(cfg, c.sink, dispatch.Options{
			FlagNewViewers: c.opts.FlagNewViewers,
			Log:            log,
		}),
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
	c.cur = r
	notify := c.setLocked(Connecting)
	c.mu.Unlock()
	notify()

	c.register(r)
	log.Info("session starting")
	go c.work(ctx, r)
	return nil
}

// register subscribes r's handlers. Each checks that r is still the
// current generation, so a previous run winding down cannot touch the
// controller.
func (c *Controller) register(r *run) {
	r.client.On(live.Connect, func(ev live.Event) { c.onConnect(r, ev) })
	r.client.On(live.Disconnect, func(ev live.Event) { c.onDisconnect(r, ev) })
	for _, t := range []live.EventType{live.Comment, live.Gift, live.Like, live.Share, live.Follow, live.ViewerCount} {
		r.client.On(t, func(ev live.Event) {
			if c.accepting(r) {
				r.dispatcher.Handle(ev)
			}
		})
	}
}

func (c *Controller) accepting(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur == r && c.state.Active()
}

func (c *Controller) work(ctx context.Context, r *run) {
	defer close(r.done)
	err := runClient(ctx, r.client)
	c.onExit(r, err)
}

func runClient(ctx context.Context, client live.Client) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("live client panicked: %v", p)
		}
	}()
	return client.Run(ctx)
}

func (c *Controller) onConnect(r *run, ev live.Event) {
	c.mu.Lock()
	if c.cur != r || c.state != Connecting {
		c.mu.Unlock()
		return
	}
	notify := c.setLocked(Connected)
	c.mu.Unlock()
	notify()

	r.log.Info("connected")
	r.dispatcher.Connected(r.room, ev.Time)
}

func (c *Controller) onDisconnect(r *run, ev live.Event) {
	c.mu.Lock()
	if c.cur != r {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case Connecting, Connected:
		notify := c.setLocked(Disconnected)
		c.mu.Unlock()
		notify()

		r.log.WithError(ev.Err).Warn("connection lost")
		r.dispatcher.Disconnected(ev.Time, ev.Err)
		c.cleanup(r)
	case Stopping:
		notify := c.setLocked(Idle)
		c.mu.Unlock()
		notify()
		r.log.Info("session stopped")
	default:
		c.mu.Unlock()
	}
}

// onExit handles Run returning. A run that ends on its own while active
// failed if it returned an error and was disconnected otherwise.
func (c *Controller) onExit(r *run, err error) {
	c.mu.Lock()
	if c.cur != r {
		c.mu.Unlock()
		r.log.Debug("stale run exited")
		return
	}
	switch c.state {
	case Connecting, Connected:
		next := Disconnected
		if err != nil {
			next = Failed
		}
		notify := c.setLocked(next)
		c.mu.Unlock()
		notify()

		if err != nil {
			r.log.WithError(err).Error("session failed")
			r.dispatcher.System(time.Now(), "Connection failed: "+err.Error())
		} else {
			r.log.Warn("live client exited")
			r.dispatcher.Disconnected(time.Now(), nil)
		}
		c.cleanup(r)
	case Stopping:
		notify := c.setLocked(Idle)
		c.mu.Unlock()
		notify()
		r.log.Info("session stopped")
	default:
		c.mu.Unlock()
		if err != nil {
			r.log.WithError(err).Debug("live client exited after disconnect")
		}
	}
}

// cleanup releases r's connection. Safe to call more than once.
func (c *Controller) cleanup(r *run) {
	r.client.Stop()
	r.cancel()
}

// Stop ends the current session without waiting for the worker. From
// Disconnected or Failed it acknowledges the outcome and returns to Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.state {
	case Idle, Stopping:
		c.mu.Unlock()
		return
	case Disconnected, Failed:
		notify := c.setLocked(Idle)
		c.mu.Unlock()
		notify()
		return
	}
	r := c.cur
	notify := c.setLocked(Stopping)
	c.mu.Unlock()
	notify()

	r.log.Info("stopping session")
	c.cleanup(r)
	go c.awaitStop(r)
}

// awaitStop forces Idle if the worker outlives StopTimeout.
func (c *Controller) awaitStop(r *run) {
	timer := time.NewTimer(c.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return
	case <-timer.C:
	}

	c.mu.Lock()
	if c.cur != r || c.state != Stopping {
		c.mu.Unlock()
		return
	}
	notify := c.setLocked(Idle)
	c.mu.Unlock()
	notify()
	r.log.Warnf("worker did not exit within %v, abandoning it", c.opts.StopTimeout)
}

// Shutdown stops the session and waits for its worker, bounded by ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Stop()
	c.mu.Lock()
	r := c.cur
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setLocked changes state and returns a func that notifies listeners; the
// caller runs it after releasing the lock.
func (c *Controller) setLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	fns := append([]func(State){}, c.listeners...)
	return func() {
		for _, fn := range fns {
			fn(s)
		}
	}
}
