package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

var (
	// ErrClientClosed is returned by operations on a disconnected client.
	ErrClientClosed = errors.New("assistant client closed")
	// ErrReconnectExhausted is reported when the reconnect attempt limit is hit.
	ErrReconnectExhausted = errors.New("assistant reconnect attempts exhausted")
	// ErrSubscribeRejected wraps a subscribe ack with success=false.
	ErrSubscribeRejected = errors.New("subscribe rejected")
)

// Config represents a client config.
type Config struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	// MaxFrameBytes bounds one inbound frame; larger frames drop the
	// connection.
	MaxFrameBytes int64

	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxAttempts caps consecutive failed reconnects. Zero retries forever.
	MaxAttempts int

	HeartbeatInterval time.Duration
	ToolTimeout       time.Duration

	// Dialer overrides the websocket dialer.
	Dialer Dialer
}

// Callbacks represents client-level callbacks. They run on client goroutines
// and must not block.
type Callbacks struct {
	OnStateChange     func(from, to State)
	OnConnected       func()
	OnDisconnected    func(err error)
	OnToolsRegistered func(ack protocol.ToolsAck)
}

// Listener receives the events of one conversation. Nil fields are skipped.
type Listener struct {
	OnUserMessage      func(msg protocol.UserMessage)
	OnAssistantMessage func(msg protocol.AssistantMessage)
	OnThinkingUpdate   func(summary protocol.ThinkingSummary)
	OnTitleUpdate      func(update protocol.TitleUpdate)
	OnToolUseStarted   func(req protocol.ToolUseRequest)
	OnToolUseCompleted func(result protocol.ToolUseResult)
	OnError            func(err error)
}

// ToolExecutor runs one device tool.
type ToolExecutor interface {
	Execute(ctx context.Context, args protocol.Map) (protocol.Value, error)
}

// ToolFunc adapts a function to ToolExecutor.
type ToolFunc func(ctx context.Context, args protocol.Map) (protocol.Value, error)

// Execute calls f.
func (f ToolFunc) Execute(ctx context.Context, args protocol.Map) (protocol.Value, error) {
	return f(ctx, args)
}

// ToolRegistry resolves tools by name and lists them for registration.
type ToolRegistry interface {
	Lookup(name string) (ToolExecutor, bool)
	Descriptors() []protocol.ToolDescriptor
}

// ServerError is an error frame reported by the backend.
type ServerError struct {
	Code           string
	Message        string
	MessageID      string
	ConversationID string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return "assistant server error: " + e.Message
	}
	return "assistant server error " + e.Code + ": " + e.Message
}

// Status is a point-in-time snapshot of the client.
type Status struct {
	State            State     `json:"state"`
	AssistantMode    bool      `json:"assistant_mode"`
	Subscriptions    []string  `json:"subscriptions"`
	ReconnectPending bool      `json:"reconnect_pending"`
	FailedAttempts   int       `json:"failed_attempts"`
	LastSend         time.Time `json:"last_send"`
}

const (
	defaultHandshakeTimeout  = 10 * time.Second
	defaultInitialDelay      = time.Second
	defaultMaxDelay          = 30 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultMaxFrameBytes     = 1 << 20
)

func normalizeConfig(cfg Config) Config {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = defaultMaxFrameBytes
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	return cfg
}
