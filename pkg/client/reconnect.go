package client

import "context"

// scheduleReconnect arms a single retry timer after an unexpected
// disconnect or failed dial. The delay is always the configured
// reconnect interval; there is deliberately no backoff. Must be called
// without holding c.mu.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || !c.cfg.autoReconnect || c.retryCancel != nil ||
		c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	next := c.attempts + 1
	if max := c.cfg.maxReconnectAttempts; max > 0 && next > max {
		c.mu.Unlock()
		c.logger.Warn("livewire: reconnect attempts exhausted, staying closed", "max", max)
		return
	}
	retryCtx, cancel := context.WithCancel(c.lifeCtx)
	c.retryCancel = cancel
	delay := c.cfg.reconnectInterval
	c.mu.Unlock()

	c.logger.Info("livewire: scheduling reconnect", "attempt", next, "delay", delay)

	timer := c.cfg.clock.NewTimer(delay)
	go func() {
		defer timer.Stop()
		// Release the retry context once this attempt is decided, so a
		// completed retry does not stay registered on the client's
		// lifetime context.
		defer cancel()
		select {
		case <-timer.C():
		case <-retryCtx.Done():
			return
		}

		c.mu.Lock()
		c.retryCancel = nil
		if c.closed || c.state == StateConnecting || c.state == StateOpen {
			c.mu.Unlock()
			return
		}
		c.attempts = next
		c.state = StateConnecting
		identity := c.identity
		c.mu.Unlock()

		if fn := c.cfg.onReconnect; fn != nil {
			fn(next)
		}
		c.events.publish(Event{Kind: EventReconnect, Attempt: next})
		c.dial(identity)
	}()
}

// cancelRetryLocked aborts any pending reconnect timer. Caller holds c.mu.
func (c *Client) cancelRetryLocked() {
	if c.retryCancel != nil {
		c.retryCancel()
		c.retryCancel = nil
	}
}
