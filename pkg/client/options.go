package client

import (
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

const (
	defaultReconnectInterval    = 2 * time.Second
	defaultMaxReconnectAttempts = 5
	defaultHeartbeatInterval    = 30 * time.Second
	defaultWriteTimeout         = 5 * time.Second
	defaultDialTimeout          = 10 * time.Second
	defaultSendBuffer           = 16
)

type config struct {
	logger               *slog.Logger
	dialOptions          *websocket.DialOptions
	clock                Clock
	autoReconnect        bool
	reconnectInterval    time.Duration
	maxReconnectAttempts int           // 0 retries indefinitely
	heartbeatInterval    time.Duration // <= 0 disables the heartbeat
	writeTimeout         time.Duration
	dialTimeout          time.Duration
	sendBuffer           int
	debug                bool

	onOpen      func()
	onClose     func()
	onError     func(error)
	onMessage   func(*wire.Envelope)
	onReconnect func(attempt int)
}

func defaultConfig() config {
	return config{
		clock:                systemClock{},
		autoReconnect:        true,
		reconnectInterval:    defaultReconnectInterval,
		maxReconnectAttempts: defaultMaxReconnectAttempts,
		heartbeatInterval:    defaultHeartbeatInterval,
		writeTimeout:         defaultWriteTimeout,
		dialTimeout:          defaultDialTimeout,
		sendBuffer:           defaultSendBuffer,
	}
}

// Option configures the Client.
type Option func(*config)

// WithLogger sets a custom slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables debug-level logging on the default logger.
func WithDebug(debug bool) Option {
	return func(c *config) { c.debug = debug }
}

// WithDialOptions sets custom websocket.DialOptions.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *config) { c.dialOptions = opts }
}

// WithClock injects a Clock. Intended for tests that advance virtual time.
func WithClock(clock Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithAutoReconnect enables or disables automatic reconnection after an
// unexpected disconnect. Enabled by default.
func WithAutoReconnect(enabled bool) Option {
	return func(c *config) { c.autoReconnect = enabled }
}

// WithReconnectInterval sets the fixed delay between reconnect attempts.
// There is no backoff: every retry waits exactly this long.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.reconnectInterval = d
		}
	}
}

// WithMaxReconnectAttempts caps automatic reconnection. 0 retries forever.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxReconnectAttempts = n
		}
	}
}

// WithHeartbeatInterval sets the PING cadence while connected.
// A zero or negative interval disables the heartbeat.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) { c.heartbeatInterval = d }
}

// WithWriteTimeout bounds a single frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithDialTimeout bounds a single connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithSendBuffer sets the outbound frame buffer size for one connection.
func WithSendBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.sendBuffer = n
		}
	}
}

// OnOpen registers a callback fired each time the connection opens.
func OnOpen(fn func()) Option {
	return func(c *config) { c.onOpen = fn }
}

// OnClose registers a callback fired each time the connection closes,
// whether expected or not.
func OnClose(fn func()) Option {
	return func(c *config) { c.onClose = fn }
}

// OnError registers a callback for transport and dial errors.
func OnError(fn func(error)) Option {
	return func(c *config) { c.onError = fn }
}

// OnMessage registers a callback invoked with every inbound application
// envelope, before type-filtered listeners run.
func OnMessage(fn func(*wire.Envelope)) Option {
	return func(c *config) { c.onMessage = fn }
}

// OnReconnect registers a callback fired with the attempt number before
// each automatic reconnection attempt.
func OnReconnect(fn func(attempt int)) Option {
	return func(c *config) { c.onReconnect = fn }
}
