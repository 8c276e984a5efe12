// Package broker implements an in-memory development broker speaking
// the livewire wire protocol. It answers PING with PONG, honors
// SUBSCRIBE/UNSUBSCRIBE, and fans application frames out to every
// connection subscribed to the frame's channel. Routing is keyed by the
// envelope type (channel name == message type); a production server
// would maintain its own channel index, but for local development and
// integration tests type-keyed routing is all the client needs.
package broker

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/cskr/pubsub"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

const defaultQueueLength = 32

// Options configures the broker.
type Options struct {
	// QueueLength is the per-subscription buffer size.
	QueueLength int
}

// Broker fans envelopes out between connected clients.
type Broker struct {
	logger *slog.Logger

	busMu  sync.RWMutex
	bus    *pubsub.PubSub
	closed bool
}

// New creates a broker. A nil logger falls back to slog.Default.
func New(logger *slog.Logger, opts Options) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QueueLength <= 0 {
		opts.QueueLength = defaultQueueLength
	}
	return &Broker{
		logger: logger,
		bus:    pubsub.New(opts.QueueLength),
	}
}

// Handler returns the WebSocket endpoint handler.
func (b *Broker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			b.logger.Warn("broker: accept failed", "err", err)
			return
		}
		identity := r.URL.Query().Get("identity")
		b.logger.Info("broker: client connected", "identity", identity)
		b.serveConn(r.Context(), ws, identity)
		b.logger.Info("broker: client disconnected", "identity", identity)
	})
}

func (b *Broker) serveConn(ctx context.Context, ws *websocket.Conn, identity string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &conn{
		broker:   b,
		ws:       ws,
		identity: identity,
		out:      make(chan *wire.Envelope, defaultQueueLength),
		subs:     make(map[string]chan interface{}),
	}
	go c.writeLoop(ctx)
	defer c.unsubscribeAll()
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		env, derr := wire.Decode(data)
		if derr != nil {
			b.logger.Warn("broker: dropping malformed frame", "identity", identity, "err", derr)
			continue
		}
		c.handle(ctx, env)
	}
}

type conn struct {
	broker   *Broker
	ws       *websocket.Conn
	identity string
	out      chan *wire.Envelope

	mu   sync.Mutex
	subs map[string]chan interface{}
}

func (c *conn) handle(ctx context.Context, env *wire.Envelope) {
	switch env.Type {
	case wire.TypePing:
		pong, err := wire.New(wire.TypePong, nil)
		if err != nil {
			return
		}
		c.push(ctx, pong)
	case wire.TypeSubscribe:
		var p wire.ChannelPayload
		if err := env.DecodePayload(&p); err != nil || p.Channel == "" {
			c.broker.logger.Warn("broker: bad subscribe payload", "identity", c.identity)
			return
		}
		c.subscribe(ctx, p.Channel)
	case wire.TypeUnsubscribe:
		var p wire.ChannelPayload
		if err := env.DecodePayload(&p); err != nil || p.Channel == "" {
			return
		}
		c.unsubscribe(p.Channel)
	case wire.TypePong:
		// Clients don't originate PONG; ignore.
	default:
		c.broker.publish(env)
	}
}

func (c *conn) subscribe(ctx context.Context, channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[channel]; ok {
		return
	}
	ch := c.broker.subscribeTopic(channel)
	if ch == nil {
		return
	}
	c.subs[channel] = ch
	c.broker.logger.Debug("broker: subscribed", "identity", c.identity, "channel", channel)

	go func() {
		for v := range ch {
			env, ok := v.(*wire.Envelope)
			if !ok {
				continue
			}
			c.push(ctx, env)
		}
	}()
}

func (c *conn) unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.subs[channel]
	if !ok {
		return
	}
	delete(c.subs, channel)
	c.broker.unsubscribeTopic(ch, channel)
}

func (c *conn) unsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for channel, ch := range c.subs {
		c.broker.unsubscribeTopic(ch, channel)
		delete(c.subs, channel)
	}
}

// push never blocks the read loop; a stalled connection loses frames.
func (c *conn) push(ctx context.Context, env *wire.Envelope) {
	select {
	case c.out <- env:
	case <-ctx.Done():
	default:
		c.broker.logger.Warn("broker: out buffer full, dropping frame",
			"identity", c.identity, "type", env.Type)
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case env := <-c.out:
			data, err := env.Encode()
			if err != nil {
				continue
			}
			if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) publish(env *wire.Envelope) {
	b.busMu.RLock()
	defer b.busMu.RUnlock()
	if b.closed {
		return
	}
	b.bus.TryPub(env, env.Type)
}

func (b *Broker) subscribeTopic(channel string) chan interface{} {
	b.busMu.RLock()
	defer b.busMu.RUnlock()
	if b.closed {
		return nil
	}
	return b.bus.Sub(channel)
}

func (b *Broker) unsubscribeTopic(ch chan interface{}, channel string) {
	b.busMu.RLock()
	defer b.busMu.RUnlock()
	if b.closed {
		return
	}
	b.bus.Unsub(ch, channel)
}

// Close shuts the fan-out bus down. Connections should be closed first
// (e.g. by stopping the HTTP server).
func (b *Broker) Close() {
	b.busMu.Lock()
	defer b.busMu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.bus.Shutdown()
}
