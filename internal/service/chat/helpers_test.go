package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coursecast/server/internal/event"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)

	return t
}

// Advance moves the clock and runs due timers synchronously, in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due, pending []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(c.now):
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}

	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true

	return true
}

type fakeTransport struct {
	mu     sync.Mutex
	events []event.Outbound
	closed bool
	fail   bool
}

func (t *fakeTransport) Send(ev event.Outbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fail || t.closed {
		return errors.New("send failed")
	}
	t.events = append(t.events, ev)

	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	return nil
}

func (t *fakeTransport) Types() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	types := make([]string, 0, len(t.events))
	for _, ev := range t.events {
		types = append(types, ev.Type)
	}

	return types
}

func (t *fakeTransport) Events() []event.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]event.Outbound(nil), t.events...)
}

func (t *fakeTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = nil
}

type testConn struct {
	id string
	*fakeTransport
}

func newTestConn(id string) *testConn {
	return &testConn{id: id, fakeTransport: &fakeTransport{}}
}

func (c *testConn) Id() string { return c.id }

type broadcastCall struct {
	courseId string
	ev       event.Outbound
	exclude  string
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, courseId string, ev event.Outbound, excludeConnId string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, broadcastCall{courseId: courseId, ev: ev, exclude: excludeConnId})
}

func (b *recordingBroadcaster) Calls() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]broadcastCall(nil), b.calls...)
}

func (b *recordingBroadcaster) Count(typ string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.ev.Type == typ {
			n++
		}
	}

	return n
}
