// Package client implements a resilient real-time messaging client: a
// single persistent WebSocket connection with automatic reconnection,
// protocol-level heartbeats, transparent channel resubscription, and
// type-filtered dispatch of inbound envelopes.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Client is a single-connection messaging client. All methods are safe
// for concurrent use. Failures surface through the configured callbacks
// and the event bus rather than through return values; the only errors
// returned directly are caller mistakes such as reserved message types.
type Client struct {
	cfg    config
	urlStr string
	logger *slog.Logger

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	send        chan *wire.Envelope // recreated for every connection
	pumpCancel  context.CancelFunc
	identity    string
	attempts    int
	retryCancel context.CancelFunc
	closed      bool

	pumpWg sync.WaitGroup

	channels   *channelSet
	dispatcher *dispatcher
	events     *eventBus

	pongMu   sync.Mutex
	lastPong time.Time
}

// New creates a client for the given WebSocket URL. The client starts
// idle; call Connect to open the connection.
func New(urlStr string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(urlStr); err != nil {
		return nil, fmt.Errorf("client: invalid url %q: %w", urlStr, err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		level := slog.LevelInfo
		if cfg.debug {
			level = slog.LevelDebug
		}
		cfg.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &Client{
		cfg:        cfg,
		urlStr:     urlStr,
		logger:     cfg.logger,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		channels:   newChannelSet(),
		dispatcher: newDispatcher(),
		events:     newEventBus(),
	}, nil
}

// Connect opens the connection asynchronously. When the client is
// already connecting or open the call is a logged no-op. An optional
// identity is carried as an `identity` query parameter for server-side
// correlation and is remembered across reconnects.
func (c *Client) Connect(identity ...string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("livewire: connect on closed client ignored")
		return
	}
	if c.state == StateConnecting || c.state == StateOpen {
		st := c.state
		c.mu.Unlock()
		c.logger.Info("livewire: connect ignored", "state", st.String())
		return
	}
	c.cancelRetryLocked()
	c.attempts = 0
	if len(identity) > 0 {
		c.identity = identity[0]
	}
	id := c.identity
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial(id)
}

// dial performs one connection attempt and, on success, starts the
// pumps for the new connection.
func (c *Client) dial(identity string) {
	target, err := c.dialURL(identity)
	if err != nil {
		c.dialFailed(err)
		return
	}

	dialCtx, cancel := context.WithTimeout(c.lifeCtx, c.cfg.dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, target, c.cfg.dialOptions)
	cancel()
	if err != nil {
		c.dialFailed(fmt.Errorf("dial %s: %w", c.urlStr, err))
		return
	}

	c.mu.Lock()
	if c.closed || c.state != StateConnecting {
		// Disconnect won the race while we were dialing.
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "connection no longer wanted")
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	pumpCtx, pumpCancel := context.WithCancel(c.lifeCtx)
	c.pumpCancel = pumpCancel
	send := make(chan *wire.Envelope, c.cfg.sendBuffer)
	c.send = send
	c.pumpWg.Add(2)
	go c.readPump(pumpCtx, conn)
	go c.writePump(pumpCtx, conn, send)
	if c.cfg.heartbeatInterval > 0 {
		c.pumpWg.Add(1)
		go c.runHeartbeat(pumpCtx, send)
	}
	c.mu.Unlock()

	c.logger.Info("livewire: connected", "url", c.urlStr)
	if fn := c.cfg.onOpen; fn != nil {
		fn()
	}
	c.events.publish(Event{Kind: EventOpen})
	c.flushSubscriptions(pumpCtx, send)
}

func (c *Client) dialURL(identity string) (string, error) {
	u, err := url.Parse(c.urlStr)
	if err != nil {
		return "", fmt.Errorf("client: parse url: %w", err)
	}
	if identity != "" {
		q := u.Query()
		q.Set("identity", identity)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dialFailed reports a failed connection attempt and hands control to
// the reconnection path. The callback order mirrors a failed WebSocket
// open: an error event followed by a close event.
func (c *Client) dialFailed(err error) {
	c.mu.Lock()
	if c.closed || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	c.logger.Warn("livewire: connection attempt failed", "err", err)
	if fn := c.cfg.onError; fn != nil {
		fn(err)
	}
	c.events.publish(Event{Kind: EventError, Err: err})
	if fn := c.cfg.onClose; fn != nil {
		fn()
	}
	c.events.publish(Event{Kind: EventClose})
	c.scheduleReconnect()
}

// flushSubscriptions replays SUBSCRIBE frames for the whole tracked set
// after every transition into open, so callers never re-issue
// subscriptions across reconnects.
func (c *Client) flushSubscriptions(ctx context.Context, send chan<- *wire.Envelope) {
	for _, channel := range c.channels.snapshot() {
		env, err := wire.New(wire.TypeSubscribe, wire.ChannelPayload{Channel: channel})
		if err != nil {
			continue
		}
		c.enqueue(ctx, send, env)
		c.debugf("resubscribed", "channel", channel)
	}
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	defer c.pumpWg.Done()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.connectionLost(conn, err)
			return
		}
		env, derr := wire.Decode(data)
		if derr != nil {
			// Malformed frames are non-fatal: log, drop, keep reading.
			c.logger.Warn("livewire: dropping malformed frame", "err", derr)
			continue
		}
		c.handleEnvelope(env)
	}
}

func (c *Client) handleEnvelope(env *wire.Envelope) {
	switch env.Type {
	case wire.TypePong:
		c.notePong()
		c.debugf("heartbeat PONG received")
	case wire.TypePing, wire.TypeSubscribe, wire.TypeUnsubscribe:
		c.debugf("dropping inbound protocol frame", "type", env.Type)
	default:
		if fn := c.cfg.onMessage; fn != nil {
			fn(env)
		}
		c.events.publish(Event{Kind: EventMessage, Envelope: env})
		c.dispatcher.dispatch(env)
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send <-chan *wire.Envelope) {
	defer c.pumpWg.Done()
	for {
		select {
		case env := <-send:
			data, err := env.Encode()
			if err != nil {
				c.logger.Warn("livewire: dropping unencodable frame", "type", env.Type, "err", err)
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, c.cfg.writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				c.logger.Warn("livewire: write failed", "type", env.Type, "err", err)
				c.connectionLost(conn, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// connectionLost tears down one connection. Whichever pump fails first
// wins; the conn pointer comparison makes the second call a no-op and
// keeps teardown for stale connections away from their replacement.
func (c *Client) connectionLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.send = nil
	if c.pumpCancel != nil {
		c.pumpCancel()
		c.pumpCancel = nil
	}
	unexpected := c.state == StateOpen && !c.closed
	if c.state == StateOpen {
		c.state = StateClosed
	}
	c.mu.Unlock()

	conn.Close(websocket.StatusAbnormalClosure, "connection lost")

	if unexpected {
		c.logger.Warn("livewire: connection lost", "err", err)
		if fn := c.cfg.onError; fn != nil {
			fn(err)
		}
		c.events.publish(Event{Kind: EventError, Err: err})
	}
	if fn := c.cfg.onClose; fn != nil {
		fn()
	}
	c.events.publish(Event{Kind: EventClose})
	if unexpected {
		c.scheduleReconnect()
	}
}

// Send builds an envelope with a fresh id and current timestamp and
// writes it if the connection is open. While not open the frame is
// dropped with a debug log and a nil return; nothing is ever queued for
// a later connection. Reserved protocol types are rejected.
func (c *Client) Send(typ string, payload interface{}) error {
	if typ == "" {
		return wire.ErrEmptyType
	}
	if wire.IsReserved(typ) {
		return fmt.Errorf("client: %q is a reserved protocol type", typ)
	}

	c.mu.Lock()
	if c.state != StateOpen || c.send == nil {
		st := c.state
		c.mu.Unlock()
		c.debugf("send dropped, not connected", "type", typ, "state", st.String())
		return nil
	}
	send := c.send
	c.mu.Unlock()

	env, err := wire.New(typ, payload)
	if err != nil {
		return err
	}
	c.enqueue(c.lifeCtx, send, env)
	return nil
}

// enqueue hands a frame to the write pump without ever blocking the
// caller. A full buffer drops the frame.
func (c *Client) enqueue(ctx context.Context, send chan<- *wire.Envelope, env *wire.Envelope) {
	select {
	case send <- env:
	case <-ctx.Done():
	default:
		c.logger.Warn("livewire: send buffer full, dropping frame", "type", env.Type)
	}
}

// Subscribe tracks a channel and, when connected, announces it to the
// server. Subscribing to an already-tracked channel is a no-op, so at
// most one SUBSCRIBE frame is sent per channel per connection epoch.
func (c *Client) Subscribe(channel string) {
	if channel == "" {
		return
	}
	if !c.channels.add(channel) {
		c.debugf("subscribe ignored, already tracked", "channel", channel)
		return
	}
	c.sendChannelControl(wire.TypeSubscribe, channel)
}

// Unsubscribe stops tracking a channel and, when connected, tells the
// server. Unsubscribing from an untracked channel is a no-op.
func (c *Client) Unsubscribe(channel string) {
	if channel == "" {
		return
	}
	if !c.channels.remove(channel) {
		c.debugf("unsubscribe ignored, not tracked", "channel", channel)
		return
	}
	c.sendChannelControl(wire.TypeUnsubscribe, channel)
}

func (c *Client) sendChannelControl(typ, channel string) {
	c.mu.Lock()
	open := c.state == StateOpen && c.send != nil
	send := c.send
	c.mu.Unlock()
	if !open {
		return
	}
	env, err := wire.New(typ, wire.ChannelPayload{Channel: channel})
	if err != nil {
		return
	}
	c.enqueue(c.lifeCtx, send, env)
}

// On registers a listener for envelopes of the given type and returns a
// func that removes exactly that registration. Listeners run on the
// read loop in registration order.
func (c *Client) On(typ string, fn func(*wire.Envelope)) func() {
	if fn == nil {
		return func() {}
	}
	if wire.IsReserved(typ) {
		c.logger.Warn("livewire: listener on reserved type will never fire", "type", typ)
	}
	return c.dispatcher.add(typ, fn)
}

// Events returns a typed stream of lifecycle events, optionally
// filtered by kind, and a cancel func that releases the subscription.
// Delivery is lossy under backpressure.
func (c *Client) Events(kinds ...EventKind) (<-chan Event, func()) {
	return c.events.subscribe(kinds...)
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disconnect closes the connection, cancels any pending reconnect and
// resets the attempt counter. No automatic reconnection follows an
// explicit disconnect. Safe to call repeatedly or on an idle client.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.cancelRetryLocked()
	c.attempts = 0
	if c.state == StateIdle || c.state == StateClosed {
		c.mu.Unlock()
		c.debugf("disconnect on inactive client")
		return
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosing
	conn := c.conn
	c.conn = nil
	c.send = nil
	if c.pumpCancel != nil {
		c.pumpCancel()
		c.pumpCancel = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}

	c.mu.Lock()
	// A Connect issued while we were closing owns the state now; only
	// finish the transition if nothing intervened.
	if c.state == StateClosing {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if wasOpen {
		if fn := c.cfg.onClose; fn != nil {
			fn()
		}
		c.events.publish(Event{Kind: EventClose})
	}
	c.logger.Info("livewire: disconnected")
}

// Close disconnects and permanently tears the client down: background
// goroutines are awaited and the event bus is shut down. A closed
// client ignores further Connect calls. Close must not be called from
// inside a listener or lifecycle callback.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	c.lifeCancel()
	c.pumpWg.Wait()
	c.events.shutdown()
	c.logger.Info("livewire: closed")
}

func (c *Client) debugf(msg string, args ...any) {
	c.logger.Debug("livewire: "+msg, args...)
}
