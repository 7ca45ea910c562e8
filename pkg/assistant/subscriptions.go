package assistant

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// subscriptions tracks per-conversation subscriptions. Its lock guards only
// the id set and is never held across a socket write.
type subscriptions struct {
	mu            sync.Mutex
	ids           map[string]struct{}
	assistantMode atomic.Bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{ids: make(map[string]struct{})}
}

func (s *subscriptions) setAssistantMode(enabled bool) {
	s.assistantMode.Store(enabled)
}

func (s *subscriptions) assistantModeEnabled() bool {
	return s.assistantMode.Load()
}

func (s *subscriptions) list() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *subscriptions) remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *subscriptions) clear() {
	s.mu.Lock()
	clear(s.ids)
	s.mu.Unlock()
}

// restore re-sends every recorded subscription. Ids that fail to send stay
// recorded for the next connection.
func (s *subscriptions) restore(send func(id string) bool) int {
	sent := 0
	for _, id := range s.list() {
		if send(id) {
			sent++
		}
	}
	return sent
}

// mark records id and reports whether it was newly added.
func (s *subscriptions) mark(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Subscribe subscribes to one conversation. It is a no-op returning true when
// the conversation is already subscribed.
func (c *Client) Subscribe(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	if !c.subs.mark(conversationID) {
		return true
	}
	if !c.sendConversationSubscribe(conversationID) {
		c.subs.remove(conversationID)
		return false
	}
	c.logger.Debug("assistant subscribed", zap.String("conversation_id", conversationID))
	return true
}

// Unsubscribe forgets a conversation and sends an unsubscribe frame whether or
// not it was subscribed.
func (c *Client) Unsubscribe(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	c.subs.remove(conversationID)
	return c.sendEnvelope(conversationID, protocol.TypeUnsubscribe, protocol.Unsubscribe{ConversationID: conversationID})
}

// Subscriptions returns the subscribed conversation ids, sorted.
func (c *Client) Subscriptions() []string {
	return c.subs.list()
}

func (c *Client) sendConversationSubscribe(conversationID string) bool {
	return c.sendEnvelope(conversationID, protocol.TypeSubscribe, protocol.Subscribe{ConversationID: conversationID})
}
