package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/live-watch/livewatch/internal/live"
	"github.com/live-watch/livewatch/internal/normalize"
)

type collected struct {
	mu     sync.Mutex
	events []live.Event
}

func (c *collected) add(ev live.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collected) snapshot() []live.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]live.Event(nil), c.events...)
}

func subscribe(c *Client) *collected {
	col := &collected{}
	for t := live.Connect; t <= live.ViewerCount; t++ {
		c.On(t, col.add)
	}
	return col
}

func TestAdvanceResolvesAcrossStyles(t *testing.T) {
	c := NewClient("alice", Options{Seed: 1})
	for tick := 1; tick <= 200; tick++ {
		for _, ev := range c.advance(tick) {
			if ev.Type == live.ViewerCount {
				if n, err := normalize.Int(ev.Payload, normalize.ViewerCountKeys, -1); err != nil || n < 1 {
					t.Fatalf("tick %d: viewer count = %d, %v", tick, n, err)
				}
				continue
			}
			user, ok := normalize.Sub(ev.Payload, normalize.UserKeys)
			if !ok {
				t.Fatalf("tick %d: %v event without user", tick, ev.Type)
			}
			if normalize.String(user, normalize.UserIDKeys, "") == "" {
				t.Fatalf("tick %d: user id did not resolve", tick)
			}
			if ev.Type == live.Gift {
				gift, ok := normalize.Sub(ev.Payload, normalize.GiftKeys)
				if !ok {
					t.Fatalf("tick %d: gift without gift object", tick)
				}
				if normalize.String(gift, normalize.GiftNameKeys, "") == "" {
					t.Fatalf("tick %d: gift name did not resolve", tick)
				}
			}
		}
	}
}

func TestMalformedGiftsLackGiftObject(t *testing.T) {
	c := NewClient("alice", Options{Seed: 2, MalformedEvery: 3})
	evs := c.advance(3)
	var gift *live.Event
	for i := range evs {
		if evs[i].Type == live.Gift {
			gift = &evs[i]
		}
	}
	if gift == nil {
		t.Fatal("expected a malformed gift on tick 3")
	}
	if _, ok := normalize.Sub(gift.Payload, normalize.GiftKeys); ok {
		t.Error("malformed gift should not carry a gift object")
	}
}

func TestRunStopsWithDisconnect(t *testing.T) {
	c := NewClient("alice", Options{Interval: 5 * time.Millisecond, Seed: 3})
	col := subscribe(c)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	c.Stop()
	c.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	evs := col.snapshot()
	if len(evs) < 3 {
		t.Fatalf("expected connect, data and disconnect, got %d events", len(evs))
	}
	if evs[0].Type != live.Connect || evs[len(evs)-1].Type != live.Disconnect {
		t.Errorf("first=%v last=%v", evs[0].Type, evs[len(evs)-1].Type)
	}
}

func TestRunSimulatedDrop(t *testing.T) {
	c := NewClient("alice", Options{Interval: time.Millisecond, Seed: 4, DropAfter: 3})
	col := subscribe(c)

	err := c.Run(context.Background())
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Run() = %v, want ErrConnectionLost", err)
	}
	evs := col.snapshot()
	last := evs[len(evs)-1]
	if last.Type != live.Disconnect || !errors.Is(last.Err, ErrConnectionLost) {
		t.Errorf("last event = %+v", last)
	}
}

func TestRunAfterStopReturnsImmediately(t *testing.T) {
	c := NewClient("alice", Options{})
	col := subscribe(c)
	c.Stop()
	if err := c.Run(context.Background()); err != nil {
		t.Errorf("Run() = %v", err)
	}
	if n := len(col.snapshot()); n != 0 {
		t.Errorf("expected no events, got %d", n)
	}
}
