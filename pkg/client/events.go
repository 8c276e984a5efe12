package client

import (
	"sync"

	"github.com/cskr/pubsub"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

// EventKind identifies a lifecycle event published on the client's
// event bus.
type EventKind string

const (
	EventOpen      EventKind = "open"
	EventClose     EventKind = "close"
	EventError     EventKind = "error"
	EventReconnect EventKind = "reconnect"
	EventMessage   EventKind = "message"
)

// Event is a typed lifecycle notification. It complements the plain
// callbacks for consumers that prefer channel-based observation.
type Event struct {
	Kind     EventKind
	Attempt  int            // set for EventReconnect
	Err      error          // set for EventError
	Envelope *wire.Envelope // set for EventMessage
}

const eventBusCapacity = 32

// eventBus wraps cskr/pubsub with typed events and a shutdown guard so
// late subscriber cancellation cannot race the bus teardown.
type eventBus struct {
	mu     sync.RWMutex
	bus    *pubsub.PubSub
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{bus: pubsub.New(eventBusCapacity)}
}

// publish never blocks; a slow observer loses events rather than
// stalling the read loop.
func (b *eventBus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.bus.TryPub(ev, string(ev.Kind))
}

func (b *eventBus) subscribe(kinds ...EventKind) (<-chan Event, func()) {
	if len(kinds) == 0 {
		kinds = []EventKind{EventOpen, EventClose, EventError, EventReconnect, EventMessage}
	}
	topics := make([]string, len(kinds))
	for i, k := range kinds {
		topics[i] = string(k)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		out := make(chan Event)
		close(out)
		return out, func() {}
	}
	raw := b.bus.Sub(topics...)
	b.mu.RUnlock()

	out := make(chan Event, eventBusCapacity)
	go func() {
		defer close(out)
		for v := range raw {
			ev, ok := v.(Event)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			default: // observer not keeping up
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.RLock()
			defer b.mu.RUnlock()
			if b.closed {
				return
			}
			b.bus.Unsub(raw)
		})
	}
	return out, cancel
}

func (b *eventBus) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.bus.Shutdown()
}
