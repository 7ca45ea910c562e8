package assistant

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

type listenerRegistry struct {
	mu             sync.RWMutex
	byConversation map[string]*Listener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{byConversation: make(map[string]*Listener)}
}

func (r *listenerRegistry) set(conversationID string, l *Listener) {
	r.mu.Lock()
	r.byConversation[conversationID] = l
	r.mu.Unlock()
}

func (r *listenerRegistry) remove(conversationID string) {
	r.mu.Lock()
	delete(r.byConversation, conversationID)
	r.mu.Unlock()
}

func (r *listenerRegistry) lookup(conversationID string) *Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConversation[conversationID]
}

// resolve returns the listener for conversationID, falling back to the one
// registered under the empty id.
func (r *listenerRegistry) resolve(conversationID string) *Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.byConversation[conversationID]; ok {
		return l
	}
	return r.byConversation[""]
}

// AddListener registers l for a conversation, replacing any previous one. The
// empty id registers the fallback listener.
func (c *Client) AddListener(conversationID string, l *Listener) {
	if l == nil {
		c.listeners.remove(conversationID)
		return
	}
	c.listeners.set(conversationID, l)
}

// RemoveListener unregisters the listener of a conversation.
func (c *Client) RemoveListener(conversationID string) {
	c.listeners.remove(conversationID)
}

type frameHandler func(gen uint64, env protocol.Envelope) error

// frameHandlers builds the inbound dispatch table once per client.
func (c *Client) frameHandlers() map[protocol.MessageType]frameHandler {
	return map[protocol.MessageType]frameHandler{
		protocol.TypeError:              c.onErrorMessage,
		protocol.TypeUserMessage:        c.onUserMessage,
		protocol.TypeAssistantMessage:   c.onAssistantMessage,
		protocol.TypeToolUseRequest:     c.onToolUseRequest,
		protocol.TypeToolUseResult:      c.onToolUseResult,
		protocol.TypeThinkingSummary:    c.onThinkingSummary,
		protocol.TypeTitleUpdate:        c.onTitleUpdate,
		protocol.TypeSubscribeAck:       c.onSubscribeAck,
		protocol.TypeUnsubscribeAck:     c.onUnsubscribeAck,
		protocol.TypeToolsAck:           c.onToolsAck,
		protocol.TypeAssistantHeartbeat: c.onNoop,
	}
}

func (c *Client) handleFrame(gen uint64, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("assistant frame dropped", zap.Int("size", len(data)), zap.Error(err))
		return
	}

	handler, ok := c.handlers[env.Type]
	if !ok {
		c.logger.Debug("assistant unknown message type",
			zap.Stringer("type", env.Type),
			zap.String("conversation_id", env.ConversationID),
		)
		return
	}
	if err := handler(gen, env); err != nil {
		c.logger.Warn("assistant frame dropped",
			zap.Stringer("type", env.Type),
			zap.String("conversation_id", env.ConversationID),
			zap.Error(err),
		)
	}
}

func route(envelopeID, bodyID string) string {
	if envelopeID != "" {
		return envelopeID
	}
	return bodyID
}

func (c *Client) onErrorMessage(_ uint64, env protocol.Envelope) error {
	msg, err := protocol.ParseErrorMessage(env.Body)
	if err != nil {
		return err
	}
	id := route(env.ConversationID, msg.ConversationID)
	c.logger.Warn("assistant server error",
		zap.String("conversation_id", id),
		zap.String("code", msg.Code),
		zap.String("message", msg.Message),
	)
	c.reportError(id, &ServerError{
		Code:           msg.Code,
		Message:        msg.Message,
		MessageID:      msg.MessageID,
		ConversationID: id,
	})
	return nil
}

func (c *Client) onUserMessage(_ uint64, env protocol.Envelope) error {
	msg, err := protocol.ParseUserMessage(env.Body)
	if err != nil {
		return err
	}
	msg.ConversationID = route(env.ConversationID, msg.ConversationID)
	if l := c.listeners.resolve(msg.ConversationID); l != nil && l.OnUserMessage != nil {
		l.OnUserMessage(msg)
	}
	return nil
}

func (c *Client) onAssistantMessage(_ uint64, env protocol.Envelope) error {
	msg, err := protocol.ParseAssistantMessage(env.Body)
	if err != nil {
		return err
	}
	msg.ConversationID = route(env.ConversationID, msg.ConversationID)
	if l := c.listeners.resolve(msg.ConversationID); l != nil && l.OnAssistantMessage != nil {
		l.OnAssistantMessage(msg)
	}
	return nil
}

func (c *Client) onThinkingSummary(_ uint64, env protocol.Envelope) error {
	summary, err := protocol.ParseThinkingSummary(env.Body)
	if err != nil {
		return err
	}
	summary.ConversationID = route(env.ConversationID, summary.ConversationID)
	if l := c.listeners.resolve(summary.ConversationID); l != nil && l.OnThinkingUpdate != nil {
		l.OnThinkingUpdate(summary)
	}
	return nil
}

func (c *Client) onTitleUpdate(_ uint64, env protocol.Envelope) error {
	update, err := protocol.ParseTitleUpdate(env.Body)
	if err != nil {
		return err
	}
	if l := c.listeners.resolve(route(env.ConversationID, update.ConversationID)); l != nil && l.OnTitleUpdate != nil {
		l.OnTitleUpdate(update)
	}
	return nil
}

func (c *Client) onToolUseRequest(_ uint64, env protocol.Envelope) error {
	req, err := protocol.ParseToolUseRequest(env.Body)
	if err != nil {
		return err
	}
	req.ConversationID = route(env.ConversationID, req.ConversationID)
	if l := c.listeners.resolve(req.ConversationID); l != nil && l.OnToolUseStarted != nil {
		l.OnToolUseStarted(req)
	}
	if req.IsClient() {
		c.dispatchTool(req)
	}
	return nil
}

func (c *Client) onToolUseResult(_ uint64, env protocol.Envelope) error {
	result, err := protocol.ParseToolUseResult(env.Body)
	if err != nil {
		return err
	}
	result.ConversationID = route(env.ConversationID, result.ConversationID)
	if l := c.listeners.resolve(result.ConversationID); l != nil && l.OnToolUseCompleted != nil {
		l.OnToolUseCompleted(result)
	}
	return nil
}

func (c *Client) onSubscribeAck(gen uint64, env protocol.Envelope) error {
	ack, err := protocol.ParseSubscribeAck(env.Body)
	if err != nil {
		return err
	}
	if id := route(env.ConversationID, ack.ConversationID); id != "" {
		if !ack.Success {
			c.subs.remove(id)
			c.reportError(id, fmt.Errorf("%w: conversation %s: %s", ErrSubscribeRejected, id, ack.Error))
		}
		return nil
	}
	if !ack.Success {
		c.logger.Warn("assistant global subscribe rejected", zap.String("error", ack.Error))
		c.reportError("", fmt.Errorf("%w: %s", ErrSubscribeRejected, ack.Error))
		return nil
	}
	if from, ok := c.markSubscribed(gen); ok {
		c.onSubscribed(gen, from)
	}
	return nil
}

func (c *Client) onUnsubscribeAck(_ uint64, env protocol.Envelope) error {
	ack, err := protocol.ParseUnsubscribeAck(env.Body)
	if err != nil {
		return err
	}
	c.logger.Debug("assistant unsubscribe acknowledged",
		zap.String("conversation_id", route(env.ConversationID, ack.ConversationID)),
		zap.Bool("success", ack.Success),
	)
	return nil
}

func (c *Client) onToolsAck(_ uint64, env protocol.Envelope) error {
	ack, err := protocol.ParseToolsAck(env.Body)
	if err != nil {
		return err
	}
	if ack.Success {
		c.logger.Info("assistant tools registered", zap.Int("tool_count", ack.ToolCount))
	} else {
		c.logger.Warn("assistant tool registration rejected", zap.String("error", ack.Error))
	}
	if c.callbacks.OnToolsRegistered != nil {
		c.callbacks.OnToolsRegistered(ack)
	}
	return nil
}

func (c *Client) onNoop(uint64, protocol.Envelope) error {
	return nil
}

func (c *Client) reportError(conversationID string, err error) {
	if l := c.listeners.resolve(conversationID); l != nil && l.OnError != nil {
		l.OnError(err)
	}
}
