package assistant

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// SendMessage sends a user message and returns its generated id. The bool is
// false when the frame could not be sent.
func (c *Client) SendMessage(conversationID, content, previousID string) (string, bool) {
	msg := protocol.UserMessage{
		ID:             "msg_" + uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		PreviousID:     previousID,
	}
	return msg.ID, c.sendEnvelope(conversationID, protocol.TypeUserMessage, msg)
}

// RegisterTools sends the registry's tool list. It only sends once the global
// subscription is acknowledged.
func (c *Client) RegisterTools() bool {
	if c.State() != StateSubscribed {
		return false
	}
	var tools []protocol.ToolDescriptor
	if c.registry != nil {
		tools = c.registry.Descriptors()
	}
	ok := c.sendEnvelope("", protocol.TypeToolsRegister, protocol.ToolsRegister{Tools: tools})
	if ok {
		c.logger.Info("assistant tools sent", zap.Int("tool_count", len(tools)))
	}
	return ok
}
