package client_test

import (
	"sync"
	"testing"
	"time"

	"github.com/lightforgemedia/go-livewire/pkg/client"
	"github.com/lightforgemedia/go-livewire/pkg/testutil"
)

// attemptRecorder captures OnReconnect notifications.
type attemptRecorder struct {
	mu       sync.Mutex
	attempts []int
}

func (r *attemptRecorder) record(attempt int) {
	r.mu.Lock()
	r.attempts = append(r.attempts, attempt)
	r.mu.Unlock()
}

func (r *attemptRecorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.attempts))
	copy(out, r.attempts)
	return out
}

func TestReconnectStopsAfterMaxAttempts(t *testing.T) {
	// Nothing listens on port 1; every dial fails fast.
	const deadURL = "ws://127.0.0.1:1/ws"

	rec := &attemptRecorder{}
	var mu sync.Mutex
	var errCount int
	c := newTestClient(t, deadURL,
		client.WithAutoReconnect(true),
		client.WithReconnectInterval(100*time.Millisecond),
		client.WithMaxReconnectAttempts(2),
		client.WithDialTimeout(500*time.Millisecond),
		client.OnReconnect(rec.record),
		client.OnError(func(error) {
			mu.Lock()
			errCount++
			mu.Unlock()
		}),
	)

	c.Connect()

	testutil.MustWait(t, "both retries attempted", 5*time.Second, func() bool {
		return len(rec.snapshot()) == 2
	})
	if got := rec.snapshot(); got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected attempts [1 2], got %v", got)
	}

	// After exhaustion no further attempts happen.
	time.Sleep(400 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %v", got)
	}
	if c.State() != client.StateClosed {
		t.Errorf("expected closed after exhaustion, got %v", c.State())
	}
	if c.IsConnected() {
		t.Error("client must not report connected")
	}
	mu.Lock()
	defer mu.Unlock()
	if errCount != 3 { // initial dial plus two retries
		t.Errorf("expected 3 dial errors, got %d", errCount)
	}
}

func TestReconnectRestoresConnectionAndResetsCounter(t *testing.T) {
	ms := testutil.NewMockServer(t)
	rec := &attemptRecorder{}
	c := newTestClient(t, ms.URL,
		client.WithAutoReconnect(true),
		client.WithReconnectInterval(50*time.Millisecond),
		client.OnReconnect(rec.record),
	)

	c.Connect()
	waitForOpen(t, c)

	ms.CloseCurrentConnection()
	testutil.MustWait(t, "first reconnect", 3*time.Second, func() bool {
		return ms.ConnCount() == 2 && c.IsConnected()
	})

	ms.CloseCurrentConnection()
	testutil.MustWait(t, "second reconnect", 3*time.Second, func() bool {
		return ms.ConnCount() == 3 && c.IsConnected()
	})

	// The counter resets on every successful open, so each cycle
	// reports attempt number 1.
	if got := rec.snapshot(); len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Fatalf("expected attempts [1 1], got %v", got)
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newTestClient(t, ms.URL,
		client.WithAutoReconnect(true),
		client.WithReconnectInterval(150*time.Millisecond),
	)
	c.Connect()
	waitForOpen(t, c)

	// Drop the connection so a retry gets scheduled, then disconnect
	// before the timer fires.
	ms.CloseCurrentConnection()
	testutil.MustWait(t, "connection observed lost", 2*time.Second, func() bool {
		return !c.IsConnected()
	})
	c.Disconnect()

	time.Sleep(400 * time.Millisecond)
	if got := ms.ConnCount(); got != 1 {
		t.Errorf("pending retry should be cancelled by disconnect, got %d connections", got)
	}
	if c.State() != client.StateClosed {
		t.Errorf("expected closed, got %v", c.State())
	}
}

func TestExplicitConnectReArmsAfterExhaustion(t *testing.T) {
	const deadURL = "ws://127.0.0.1:1/ws"

	rec := &attemptRecorder{}
	c := newTestClient(t, deadURL,
		client.WithAutoReconnect(true),
		client.WithReconnectInterval(50*time.Millisecond),
		client.WithMaxReconnectAttempts(1),
		client.WithDialTimeout(500*time.Millisecond),
		client.OnReconnect(rec.record),
	)

	c.Connect()
	testutil.MustWait(t, "single retry exhausted", 5*time.Second, func() bool {
		return len(rec.snapshot()) == 1
	})
	time.Sleep(200 * time.Millisecond)
	if c.State() != client.StateClosed {
		t.Fatalf("expected closed after exhaustion, got %v", c.State())
	}

	// A new explicit Connect resets the attempt counter and dials
	// again: the retry cycle restarts from attempt 1.
	c.Connect()
	testutil.MustWait(t, "retry cycle restarted", 5*time.Second, func() bool {
		return len(rec.snapshot()) == 2
	})
	if got := rec.snapshot(); got[1] != 1 {
		t.Fatalf("expected restarted cycle to report attempt 1, got %v", got)
	}
}

func TestReconnectRetriesOnVirtualClock(t *testing.T) {
	// Nothing listens on port 1; every dial fails fast.
	const deadURL = "ws://127.0.0.1:1/ws"

	fc := newFakeClock()
	rec := &attemptRecorder{}
	c := newTestClient(t, deadURL,
		client.WithClock(fc),
		client.WithAutoReconnect(true),
		client.WithReconnectInterval(time.Second),
		client.WithMaxReconnectAttempts(2),
		client.WithDialTimeout(500*time.Millisecond),
		client.OnReconnect(rec.record),
	)

	c.Connect()
	testutil.MustWait(t, "first retry armed", 3*time.Second, func() bool {
		return fc.TimerCount() == 1
	})

	fc.Advance(time.Second)
	testutil.MustWait(t, "second retry armed", 3*time.Second, func() bool {
		return len(rec.snapshot()) == 1 && fc.TimerCount() == 2
	})

	fc.Advance(time.Second)
	testutil.MustWait(t, "attempts exhausted", 3*time.Second, func() bool {
		return len(rec.snapshot()) == 2
	})

	// Past the cap no further timer gets armed.
	time.Sleep(150 * time.Millisecond)
	if got := fc.TimerCount(); got != 2 {
		t.Errorf("expected no retry timer past the cap, got %d timers", got)
	}
	if got := rec.snapshot(); got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected attempts [1 2], got %v", got)
	}
}

func TestConnectDuringDisconnectIsHonored(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newTestClient(t, ms.URL)

	// A Connect racing the tail of a Disconnect must win: once the
	// caller asked to reconnect, the closing transition may not swallow
	// the request. Iterate to actually land inside the closing window.
	for i := 0; i < 10; i++ {
		c.Connect()
		waitForOpen(t, c)

		done := make(chan struct{})
		go func() {
			c.Disconnect()
			close(done)
		}()
		for c.State() == client.StateOpen {
			time.Sleep(100 * time.Microsecond)
		}
		c.Connect()
		<-done

		testutil.MustWait(t, "reconnected after racing disconnect", 3*time.Second, c.IsConnected)
	}
}
