package client

import (
	"fmt"
	"sync"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

// registration is one listener entry. The key is opaque and unique, so
// the returned remove func targets exactly this entry.
type registration struct {
	key string
	fn  func(*wire.Envelope)
}

// dispatcher routes inbound envelopes to listeners filtered by exact
// type match, in registration order.
type dispatcher struct {
	mu        sync.RWMutex
	nextKey   uint64
	listeners map[string][]registration
}

func newDispatcher() *dispatcher {
	return &dispatcher{listeners: make(map[string][]registration)}
}

func (d *dispatcher) add(typ string, fn func(*wire.Envelope)) (remove func()) {
	d.mu.Lock()
	d.nextKey++
	key := fmt.Sprintf("%s#%d", typ, d.nextKey)
	d.listeners[typ] = append(d.listeners[typ], registration{key: key, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.removeKey(typ, key) })
	}
}

func (d *dispatcher) removeKey(typ, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	regs := d.listeners[typ]
	for i, r := range regs {
		if r.key == key {
			d.listeners[typ] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(d.listeners[typ]) == 0 {
		delete(d.listeners, typ)
	}
}

// dispatch invokes listeners synchronously against a snapshot of the
// registration list. A listener removed while this frame is in flight
// still receives it; removal takes effect from the next frame on.
func (d *dispatcher) dispatch(env *wire.Envelope) {
	d.mu.RLock()
	regs := d.listeners[env.Type]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	d.mu.RUnlock()

	for _, r := range snapshot {
		r.fn(env)
	}
}

func (d *dispatcher) count(typ string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[typ])
}
