package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// readLoopWait bounds how long Disconnect waits for the read loop to exit.
const readLoopWait = 2 * time.Second

// Client represents an assistant protocol client.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	callbacks Callbacks
	registry  ToolRegistry
	dialer    Dialer

	mu sync.Mutex

	state      State
	closed     bool
	socket     Socket
	readDone   chan struct{}
	generation uint64
	lastSend   time.Time

	lifetime context.Context
	cancel   context.CancelFunc

	backoff          *Backoff
	reconnectPending bool
	reconnectTimer   *time.Timer
	heartbeatCancel  context.CancelFunc

	subs      *subscriptions
	listeners *listenerRegistry
	handlers  map[protocol.MessageType]frameHandler
	inflight  conc.WaitGroup
}

// New creates a disconnected client. registry may be nil when the device
// exposes no tools.
func New(cfg Config, registry ToolRegistry, callbacks Callbacks, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = normalizeConfig(cfg)
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewWebsocketDialer(cfg.HandshakeTimeout, cfg.MaxFrameBytes)
	}
	c := &Client{
		cfg:       cfg,
		logger:    logger,
		callbacks: callbacks,
		registry:  registry,
		dialer:    dialer,
		state:     StateDisconnected,
		closed:    true,
		backoff:   NewBackoff(cfg.InitialDelay, cfg.MaxDelay, cfg.MaxAttempts),
		subs:      newSubscriptions(),
		listeners: newListenerRegistry(),
	}
	c.handlers = c.frameHandlers()
	return c
}

// Connect opens a new connection, replacing any existing one. A failed dial
// is returned and also handed to the reconnect policy.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return errors.New("assistant backend url is empty")
	}
	c.mu.Lock()
	if c.lifetime == nil || c.lifetime.Err() != nil {
		c.lifetime, c.cancel = context.WithCancel(context.Background())
		c.backoff.Reset()
	}
	c.closed = false
	c.stopReconnectLocked()
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.generation++
	gen := c.generation
	stale := c.socket
	c.socket = nil
	c.readDone = nil
	c.stopHeartbeatLocked()
	c.subs.setAssistantMode(false)
	from, changed := c.setStateLocked(StateConnecting)
	lifetime := c.lifetime
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close(websocket.CloseNormalClosure, "reconnect")
	}
	if changed {
		c.notifyState(from, StateConnecting)
	}

	c.logger.Info("assistant connecting", zap.String("backend_url", c.cfg.URL), zap.Uint64("generation", gen))

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(lifetime, cancel)
	defer stop()

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	socket, err := c.dialer.Dial(dialCtx, c.cfg.URL, header)
	if err != nil {
		c.logger.Warn("assistant connect failed", zap.String("backend_url", c.cfg.URL), zap.Error(err))
		c.handleConnectionLoss(gen, err)
		return fmt.Errorf("dial assistant backend: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		_ = socket.Close(websocket.CloseNormalClosure, "superseded")
		return ErrClientClosed
	}
	c.socket = socket
	c.readDone = done
	from, changed = c.setStateLocked(StateOpen)
	c.mu.Unlock()

	if changed {
		c.notifyState(from, StateOpen)
	}
	c.logger.Info("assistant connected", zap.String("backend_url", c.cfg.URL), zap.Uint64("generation", gen))

	go c.readLoop(gen, socket, done)

	if !c.sendEnvelope("", protocol.TypeSubscribe, protocol.Subscribe{AssistantMode: true}) {
		c.logger.Warn("assistant global subscribe not sent")
	}
	return nil
}

// Disconnect closes the connection with a normal closure and cancels pending
// reconnects, heartbeats and tool result delivery. It waits briefly for the
// read loop to exit, so it should not be called from a listener callback.
func (c *Client) Disconnect() {
	c.shutdown(nil)
}

func (c *Client) shutdown(reason error) {
	c.mu.Lock()
	if c.closed && c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.stopReconnectLocked()
	c.stopHeartbeatLocked()
	if c.cancel != nil {
		c.cancel()
	}
	socket := c.socket
	done := c.readDone
	c.socket = nil
	c.readDone = nil
	from, changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if socket != nil {
		_ = socket.Close(websocket.CloseNormalClosure, "client disconnect")
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(readLoopWait):
			c.logger.Warn("assistant read loop did not exit")
		}
	}
	c.subs.clear()

	if changed {
		c.notifyState(from, StateDisconnected)
	}
	if reason == nil {
		c.logger.Info("assistant disconnected")
		return
	}
	c.logger.Warn("assistant disconnected", zap.Error(reason))
	if c.callbacks.OnDisconnected != nil {
		c.callbacks.OnDisconnected(reason)
	}
	if l := c.listeners.lookup(""); l != nil && l.OnError != nil {
		l.OnError(reason)
	}
}

// Send writes one encoded frame. It reports false when no socket is live or
// the write fails; it never retries.
func (c *Client) Send(data []byte) bool {
	return c.send(data, time.Time{})
}

// send records at as the last-send time, or the write completion time when at
// is zero.
func (c *Client) send(data []byte, at time.Time) bool {
	c.mu.Lock()
	socket := c.socket
	gen := c.generation
	c.mu.Unlock()
	if socket == nil {
		return false
	}
	if err := socket.WriteMessage(data); err != nil {
		c.logger.Warn("assistant send failed", zap.Error(err))
		return false
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.mu.Lock()
	if gen == c.generation {
		c.lastSend = at
	}
	c.mu.Unlock()
	return true
}

func (c *Client) sendEnvelope(conversationID string, msgType protocol.MessageType, body protocol.Body) bool {
	return c.sendEnvelopeAt(conversationID, msgType, body, time.Time{})
}

func (c *Client) sendEnvelopeAt(conversationID string, msgType protocol.MessageType, body protocol.Body, at time.Time) bool {
	data, err := protocol.EncodeBody(conversationID, msgType, body)
	if err != nil {
		c.logger.Error("assistant encode failed", zap.Stringer("type", msgType), zap.Error(err))
		return false
	}
	return c.send(data, at)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot for diagnostics.
func (c *Client) Status() Status {
	c.mu.Lock()
	status := Status{
		State:            c.state,
		ReconnectPending: c.reconnectPending,
		FailedAttempts:   c.backoff.Attempts(),
		LastSend:         c.lastSend,
	}
	c.mu.Unlock()
	status.AssistantMode = c.subs.assistantModeEnabled()
	status.Subscriptions = c.subs.list()
	return status
}

// Wait blocks until in-flight tool executions have returned.
func (c *Client) Wait() {
	c.inflight.Wait()
}

func (c *Client) readLoop(gen uint64, socket Socket, done chan struct{}) {
	defer close(done)
	for {
		data, err := socket.ReadMessage()
		if err != nil {
			c.handleConnectionLoss(gen, err)
			return
		}
		if !c.isCurrent(gen) {
			return
		}
		c.handleFrame(gen, data)
	}
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.generation
}

// handleConnectionLoss moves a live or connecting client to reconnecting.
// Events from superseded connections are ignored.
func (c *Client) handleConnectionLoss(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.generation || c.reconnectPending {
		c.mu.Unlock()
		return
	}
	stale := c.socket
	c.socket = nil
	c.readDone = nil
	c.stopHeartbeatLocked()
	c.subs.setAssistantMode(false)
	from, changed := c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close(websocket.CloseNormalClosure, "")
	}
	if from.Connected() {
		c.logger.Warn("assistant connection lost", zap.Error(err))
	}
	if changed {
		c.notifyState(from, StateReconnecting)
	}
	if from.Connected() && c.callbacks.OnDisconnected != nil {
		c.callbacks.OnDisconnected(err)
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (c *Client) scheduleReconnect() bool {
	c.mu.Lock()
	if c.closed || c.reconnectPending {
		c.mu.Unlock()
		return false
	}
	delay, ok := c.backoff.Next()
	if !ok {
		attempts := c.backoff.Attempts()
		c.mu.Unlock()
		c.logger.Warn("assistant reconnect gave up", zap.Int("attempts", attempts))
		c.shutdown(ErrReconnectExhausted)
		return false
	}
	gen := c.generation
	attempt := c.backoff.Attempts()
	c.reconnectPending = true
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.fireReconnect(gen)
	})
	c.mu.Unlock()

	c.logger.Info("assistant reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempt))
	return true
}

func (c *Client) fireReconnect(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.reconnectPending = false
	c.reconnectTimer = nil
	lifetime := c.lifetime
	c.mu.Unlock()

	_ = c.connect(lifetime)
}

func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
}

// markSubscribed moves an open connection to subscribed. It reports false when
// gen is stale or the connection is already subscribed.
func (c *Client) markSubscribed(gen uint64) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation || c.state != StateOpen {
		return c.state, false
	}
	from, changed := c.setStateLocked(StateSubscribed)
	if !changed {
		return from, false
	}
	c.stopReconnectLocked()
	c.backoff.Reset()
	return from, true
}

func (c *Client) onSubscribed(gen uint64, from State) {
	c.subs.setAssistantMode(true)
	c.notifyState(from, StateSubscribed)
	if c.callbacks.OnConnected != nil {
		c.callbacks.OnConnected()
	}
	c.startHeartbeat(gen)
	c.RegisterTools()
	if n := c.subs.restore(c.sendConversationSubscribe); n > 0 {
		c.logger.Info("assistant subscriptions restored", zap.Int("count", n))
	}
}

func zapState(key string, state State) zap.Field {
	return zap.String(key, string(state))
}
