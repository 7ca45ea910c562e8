package assistant

import (
	"context"
	"time"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// startHeartbeat runs the heartbeat loop for connection gen until the
// connection is lost or the client disconnects.
func (c *Client) startHeartbeat(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation || c.lifetime == nil {
		c.mu.Unlock()
		return
	}
	c.stopHeartbeatLocked()
	ctx, cancel := context.WithCancel(c.lifetime)
	c.heartbeatCancel = cancel
	c.mu.Unlock()

	go c.heartbeatLoop(ctx, c.cfg.HeartbeatInterval)
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
		c.heartbeatCancel = nil
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.heartbeatTick(now)
		}
	}
}

// heartbeatTick sends a heartbeat unless a frame went out within the last
// interval. A sent heartbeat records now, the tick time, as the last send.
func (c *Client) heartbeatTick(now time.Time) bool {
	interval := c.cfg.HeartbeatInterval
	c.mu.Lock()
	subscribed := c.state == StateSubscribed
	last := c.lastSend
	c.mu.Unlock()
	if !subscribed {
		return false
	}
	if now.Sub(last) < interval {
		return false
	}
	if !c.sendEnvelopeAt("", protocol.TypeAssistantHeartbeat, protocol.Heartbeat{}, now) {
		c.logger.Debug("assistant heartbeat not sent")
		return false
	}
	return true
}
