package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/live-watch/livewatch/internal/event"
	"github.com/live-watch/livewatch/internal/live"
	"github.com/live-watch/livewatch/internal/normalize"
	"github.com/live-watch/livewatch/internal/settings"
)

// fakeClient is a scriptable live client. Run blocks until Stop, context
// cancellation, or a value on exit.
type fakeClient struct {
	live.Handlers

	room      string
	stopped   chan struct{}
	stopOnce  sync.Once
	exit      chan error
	running   chan struct{}
	stopCalls atomic.Int32
	// ignoreStop keeps Run blocked after Stop, simulating a stuck worker.
	ignoreStop bool
	// disconnectOnStop emits Disconnect when stopped, like real clients.
	disconnectOnStop bool
}

func newFakeClient(room string) *fakeClient {
	return &fakeClient{
		room:             room,
		stopped:          make(chan struct{}),
		exit:             make(chan error, 1),
		running:          make(chan struct{}),
		disconnectOnStop: true,
	}
}

func (f *fakeClient) Run(ctx context.Context) error {
	close(f.running)
	if f.ignoreStop {
		return <-f.exit
	}
	select {
	case err := <-f.exit:
		return err
	case <-f.stopped:
	case <-ctx.Done():
	}
	if f.disconnectOnStop {
		f.Emit(live.Event{Type: live.Disconnect})
	}
	return nil
}

func (f *fakeClient) Stop() {
	f.stopCalls.Add(1)
	f.stopOnce.Do(func() { close(f.stopped) })
}

func (f *fakeClient) emit(t live.EventType, m map[string]any) {
	f.Emit(live.Event{Type: t, Payload: normalize.FromMap(m)})
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
	cats  []event.Category
}

func (r *recordingSink) Write(_ time.Time, c event.Category, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
	r.cats = append(r.cats, c)
}

func (r *recordingSink) has(c event.Category, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.lines {
		if r.cats[i] == c && strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

type harness struct {
	ctrl    *Controller
	sink    *recordingSink
	mu      sync.Mutex
	clients []*fakeClient
	tweak   func(*fakeClient)
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{sink: &recordingSink{}}
	h.ctrl = NewController(func(room string) (live.Client, error) {
		fc := newFakeClient(room)
		if h.tweak != nil {
			h.tweak(fc)
		}
		h.mu.Lock()
		h.clients = append(h.clients, fc)
		h.mu.Unlock()
		return fc, nil
	}, h.sink, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.ctrl.Shutdown(ctx)
	})
	return h
}

func (h *harness) client(t *testing.T, i int) *fakeClient {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.clients) {
		t.Fatalf("client %d was never created (%d total)", i, len(h.clients))
	}
	return h.clients[i]
}

func (h *harness) attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", c.State(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitRunning(t *testing.T, fc *fakeClient) {
	t.Helper()
	select {
	case <-fc.running:
	case <-time.After(2 * time.Second):
		t.Fatal("client Run was never called")
	}
}

func TestStartEmptyRoom(t *testing.T) {
	h := newHarness(t, Options{})
	for _, room := range []string{"", "   ", "@", " @ "} {
		if err := h.ctrl.Start(room, settings.Default()); !errors.Is(err, ErrEmptyRoom) {
			t.Errorf("Start(%q) = %v, want ErrEmptyRoom", room, err)
		}
	}
	if h.ctrl.State() != Idle || h.attempts() != 0 {
		t.Error("an empty room must not start anything")
	}
}

func TestStartConnectsAndNormalizesRoom(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.Start("  @alice ", settings.Default()); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.State() != Connecting {
		t.Errorf("state = %s, want connecting", h.ctrl.State())
	}
	fc := h.client(t, 0)
	if fc.room != "alice" {
		t.Errorf("factory got room %q", fc.room)
	}
	waitRunning(t, fc)

	fc.Emit(live.Event{Type: live.Connect})
	waitState(t, h.ctrl, Connected)
	if !h.sink.has(event.Connect, "Connected to @alice") {
		t.Error("missing connect line")
	}
}

func TestDoubleStartIsOneAttempt(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatalf("second Start while connecting = %v", err)
	}
	fc := h.client(t, 0)
	waitRunning(t, fc)
	fc.Emit(live.Event{Type: live.Connect})
	waitState(t, h.ctrl, Connected)
	if err := h.ctrl.Start("bob", settings.Default()); err != nil {
		t.Fatalf("Start while connected = %v", err)
	}
	if h.attempts() != 1 {
		t.Errorf("connection attempts = %d, want 1", h.attempts())
	}
}

func TestStopFromIdleIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	var changes atomic.Int32
	h.ctrl.OnStateChange(func(State) { changes.Add(1) })
	h.ctrl.Stop()
	h.ctrl.Stop()
	if h.ctrl.State() != Idle {
		t.Errorf("state = %s", h.ctrl.State())
	}
	if changes.Load() != 0 {
		t.Errorf("listener fired %d times", changes.Load())
	}
}

func TestStopWhileConnectedReturnsToIdle(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	fc := h.client(t, 0)
	waitRunning(t, fc)
	fc.Emit(live.Event{Type: live.Connect})
	waitState(t, h.ctrl, Connected)

	h.ctrl.Stop()
	if s := h.ctrl.State(); s != Stopping && s != Idle {
		t.Errorf("state right after Stop = %s", s)
	}
	waitState(t, h.ctrl, Idle)
	if fc.stopCalls.Load() == 0 {
		t.Error("client Stop was never called")
	}
}

func TestStopBeforeConnect(t *testing.T) {
	h := newHarness(t, Options{})
	h.tweak = func(fc *fakeClient) { fc.disconnectOnStop = false }
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	h.ctrl.Stop()
	waitState(t, h.ctrl, Idle)
}

func TestStopTimeoutAbandonsStuckWorker(t *testing.T) {
	h := newHarness(t, Options{StopTimeout: 200 * time.Millisecond})
	h.tweak = func(fc *fakeClient) { fc.ignoreStop = true }
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	fc := h.client(t, 0)
	waitRunning(t, fc)

	start := time.Now()
	h.ctrl.Stop()
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Stop blocked on the worker")
	}
	if err := h.ctrl.Start("alice", settings.Default()); !errors.Is(err, ErrStopping) {
		t.Errorf("Start while stopping = %v, want ErrStopping", err)
	}
	waitState(t, h.ctrl, Idle)

	// The new session works while the stale worker still runs.
	h.tweak = nil
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	fc2 := h.client(t, 1)
	waitRunning(t, fc2)

	// Late events from the abandoned run are ignored.
	fc.Emit(live.Event{Type: live.Connect})
	fc.emit(live.Comment, map[string]any{"comment": "ghost"})
	time.Sleep(10 * time.Millisecond)
	if h.ctrl.State() != Connecting {
		t.Errorf("stale connect changed state to %s", h.ctrl.State())
	}
	if h.sink.has(event.Comment, "ghost") {
		t.Error("stale comment reached the sink")
	}
	fc.exit <- nil
}

func TestDisconnectThenRestart(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	fc := h.client(t, 0)
	waitRunning(t, fc)
	fc.Emit(live.Event{Type: live.Connect})
	waitState(t, h.ctrl, Connected)

	fc.Emit(live.Event{Type: live.Disconnect, Err: errors.New("EOF")})
	if h.ctrl.State() != Disconnected {
		t.Fatalf("state = %s, want disconnected", h.ctrl.State())
	}
	if !h.sink.has(event.Disconnect, "Connection lost") {
		t.Error("missing disconnect line")
	}
	if fc.stopCalls.Load() == 0 {
		t.Error("disconnect should clean up the client")
	}

	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatalf("restart after disconnect = %v", err)
	}
	if h.ctrl.State() != Connecting || h.attempts() != 2 {
		t.Errorf("state = %s, attempts = %d", h.ctrl.State(), h.attempts())
	}
}

func TestRunErrorIsFailed(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	fc := h.client(t, 0)
	waitRunning(t, fc)
	fc.exit <- errors.New("handshake rejected")

	waitState(t, h.ctrl, Failed)
	if !h.sink.has(event.System, "handshake rejected") {
		t.Error("missing failure line")
	}

	h.ctrl.Stop()
	if h.ctrl.State() != Idle {
		t.Errorf("Stop from failed = %s, want idle", h.ctrl.State())
	}
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Errorf("restart after failure = %v", err)
	}
}

func TestRunPanicIsFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.factory = func(string) (live.Client, error) { return &panickingClient{}, nil }
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	waitState(t, h.ctrl, Failed)
}

type panickingClient struct{ live.Handlers }

func (*panickingClient) Run(context.Context) error { panic("boom") }
func (*panickingClient) Stop()                     {}

func TestFactoryErrorLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.factory = func(string) (live.Client, error) { return nil, errors.New("bad url") }
	if err := h.ctrl.Start("alice", settings.Default()); err == nil {
		t.Fatal("expected factory error")
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %s", h.ctrl.State())
	}
}

func TestEventsFlowThroughDispatcher(t *testing.T) {
	h := newHarness(t, Options{FlagNewViewers: true})
	cfg := settings.Default()
	cfg.Toggles[event.Gift] = false
	if err := h.ctrl.Start("alice", cfg); err != nil {
		t.Fatal(err)
	}
	// Edits after Start do not reach the running session.
	cfg.Toggles[event.Comment] = false

	fc := h.client(t, 0)
	waitRunning(t, fc)
	fc.Emit(live.Event{Type: live.Connect})
	waitState(t, h.ctrl, Connected)

	user := map[string]any{"uniqueId": "alice", "nickname": "Alice"}
	fc.emit(live.Gift, map[string]any{"user": user, "gift": map[string]any{"name": "Rose"}})
	fc.emit(live.Comment, map[string]any{"user": user, "comment": "hi"})

	if !h.sink.has(event.Comment, "Alice (alice): hi") {
		t.Error("comment not delivered")
	}
	if !h.sink.has(event.Comment, "New viewer: Alice (@alice)") {
		t.Error("first-time commenter not flagged")
	}
	if h.sink.has(event.Gift, "Rose") {
		t.Error("disabled gift delivered")
	}
	st, ok := h.ctrl.Stats()
	if !ok || st.ByCategory[event.Gift].Filtered != 1 {
		t.Errorf("stats = %+v", st)
	}
	if h.ctrl.Room() != "alice" {
		t.Errorf("room = %q", h.ctrl.Room())
	}
}

func TestStateListenerSeesTransitions(t *testing.T) {
	h := newHarness(t, Options{})
	var mu sync.Mutex
	var seen []State
	h.ctrl.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	fc := h.client(t, 0)
	waitRunning(t, fc)
	fc.Emit(live.Event{Type: live.Connect})
	h.ctrl.Stop()
	waitState(t, h.ctrl, Idle)

	mu.Lock()
	defer mu.Unlock()
	want := []State{Connecting, Connected, Stopping, Idle}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestShutdownWaitsForWorker(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.Start("alice", settings.Default()); err != nil {
		t.Fatal(err)
	}
	waitRunning(t, h.client(t, 0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown = %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %s", h.ctrl.State())
	}
	if h.sink.count() != 0 {
		t.Errorf("a session that never connected wrote %d lines", h.sink.count())
	}
}

func TestStateStrings(t *testing.T) {
	if Connected.String() != "connected" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
	if !Connecting.Active() || Stopping.Active() || !Stopping.Busy() || Failed.Busy() {
		t.Error("unexpected Active/Busy classification")
	}
}
