package client

import (
	"context"
	"time"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

// runHeartbeat emits a PING envelope every heartbeat interval for the
// lifetime of one connection. It stops as soon as the connection's pump
// context is cancelled, so no probes are sent while not open.
func (c *Client) runHeartbeat(ctx context.Context, send chan<- *wire.Envelope) {
	defer c.pumpWg.Done()

	ticker := c.cfg.clock.NewTicker(c.cfg.heartbeatInterval)
	defer ticker.Stop()
	c.debugf("heartbeat started", "interval", c.cfg.heartbeatInterval)

	for {
		select {
		case <-ticker.C():
			env, err := wire.New(wire.TypePing, nil)
			if err != nil {
				continue
			}
			c.enqueue(ctx, send, env)
			c.debugf("heartbeat PING sent")
		case <-ctx.Done():
			c.debugf("heartbeat stopped")
			return
		}
	}
}

// notePong records receipt of a keep-alive acknowledgment. A missing
// PONG never forces a reconnect; the timestamp exists for diagnosis.
func (c *Client) notePong() {
	c.pongMu.Lock()
	c.lastPong = c.cfg.clock.Now()
	c.pongMu.Unlock()
}

// LastPong returns the time the most recent PONG was received, or the
// zero time if none has arrived yet.
func (c *Client) LastPong() time.Time {
	c.pongMu.Lock()
	defer c.pongMu.Unlock()
	return c.lastPong
}
