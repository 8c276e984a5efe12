// Package livewire is a resilient real-time messaging client: a single
// persistent WebSocket connection that recovers from disconnects,
// keeps itself alive with periodic probes, restores channel
// subscriptions transparently across reconnects, and dispatches inbound
// envelopes to type-matched listeners.
package livewire

import (
	"github.com/lightforgemedia/go-livewire/pkg/client"
	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

// Re-export core types.
type (
	Client         = client.Client
	Option         = client.Option
	State          = client.State
	Event          = client.Event
	EventKind      = client.EventKind
	Envelope       = wire.Envelope
	ChannelPayload = wire.ChannelPayload
)

// Connection lifecycle states.
const (
	StateIdle       = client.StateIdle
	StateConnecting = client.StateConnecting
	StateOpen       = client.StateOpen
	StateClosing    = client.StateClosing
	StateClosed     = client.StateClosed
)

// Lifecycle event kinds.
const (
	EventOpen      = client.EventOpen
	EventClose     = client.EventClose
	EventError     = client.EventError
	EventReconnect = client.EventReconnect
	EventMessage   = client.EventMessage
)

// Reserved protocol frame types. Application messages must not use them.
const (
	TypePing        = wire.TypePing
	TypePong        = wire.TypePong
	TypeSubscribe   = wire.TypeSubscribe
	TypeUnsubscribe = wire.TypeUnsubscribe
)

// New creates a client for the given WebSocket URL. The client starts
// idle; call Connect to open the connection.
func New(urlStr string, opts ...Option) (*Client, error) {
	return client.New(urlStr, opts...)
}
