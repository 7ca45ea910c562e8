package protocol

import "strconv"

// MessageType is the envelope discriminant.
type MessageType uint16

const (
	TypeError              MessageType = 1
	TypeUserMessage        MessageType = 2
	TypeAssistantMessage   MessageType = 3
	TypeToolUseRequest     MessageType = 6
	TypeToolUseResult      MessageType = 7
	TypeThinkingSummary    MessageType = 34
	TypeTitleUpdate        MessageType = 35
	TypeSubscribe          MessageType = 40
	TypeUnsubscribe        MessageType = 41
	TypeSubscribeAck       MessageType = 42
	TypeUnsubscribeAck     MessageType = 43
	TypeToolsRegister      MessageType = 70
	TypeToolsAck           MessageType = 71
	TypeAssistantHeartbeat MessageType = 72
)

var typeNames = map[MessageType]string{
	TypeError:              "error",
	TypeUserMessage:        "user_message",
	TypeAssistantMessage:   "assistant_message",
	TypeToolUseRequest:     "tool_use_request",
	TypeToolUseResult:      "tool_use_result",
	TypeThinkingSummary:    "thinking_summary",
	TypeTitleUpdate:        "title_update",
	TypeSubscribe:          "subscribe",
	TypeUnsubscribe:        "unsubscribe",
	TypeSubscribeAck:       "subscribe_ack",
	TypeUnsubscribeAck:     "unsubscribe_ack",
	TypeToolsRegister:      "tools_register",
	TypeToolsAck:           "tools_ack",
	TypeAssistantHeartbeat: "heartbeat",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "type_" + strconv.Itoa(int(t))
}

// ExecutionClient marks a tool-use request the device has to execute itself.
const ExecutionClient = "client"

// Envelope wraps every frame on the wire. An empty ConversationID marks a
// control frame.
type Envelope struct {
	ConversationID string
	Type           MessageType
	Body           Value
}

// NewEnvelope builds an envelope. A nil body is stored as Nil.
func NewEnvelope(conversationID string, msgType MessageType, body Value) Envelope {
	return Envelope{
		ConversationID: conversationID,
		Type:           msgType,
		Body:           orNil(body),
	}
}
