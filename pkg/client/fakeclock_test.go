package client_test

import (
	"sync"
	"time"

	"github.com/lightforgemedia/go-livewire/pkg/client"
)

// fakeClock drives heartbeat and reconnect timers deterministically.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTicker(d time.Duration) client.Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 64), interval: d, next: f.now.Add(d)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *fakeClock) NewTimer(d time.Duration) client.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time, 1), when: f.now.Add(d)}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves virtual time forward, delivering every tick that became
// due along the way.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	for _, t := range f.tickers {
		t.deliverUpTo(f.now)
	}
	for _, t := range f.timers {
		t.deliverAt(f.now)
	}
}

// TickerCount reports how many tickers have been created so tests can
// wait for the component under test to arm its timer before advancing.
func (f *fakeClock) TickerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *fakeClock) TimerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

type fakeTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) deliverUpTo(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	for !t.next.After(now) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.interval)
	}
}

type fakeTimer struct {
	mu      sync.Mutex
	ch      chan time.Time
	when    time.Time
	fired   bool
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.fired && !t.stopped
	t.stopped = true
	return active
}

func (t *fakeTimer) deliverAt(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped || t.when.After(now) {
		return
	}
	t.fired = true
	select {
	case t.ch <- t.when:
	default:
	}
}
