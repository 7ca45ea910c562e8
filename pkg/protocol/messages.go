package protocol

import "fmt"

// Body is implemented by every typed message body.
type Body interface {
	ToValue() Value
}

// EncodeBody wraps body in an envelope and serializes it.
func EncodeBody(conversationID string, msgType MessageType, body Body) ([]byte, error) {
	var v Value = Nil{}
	if body != nil {
		v = body.ToValue()
	}
	return Encode(NewEnvelope(conversationID, msgType, v))
}

// ErrorMessage is a server-reported failure (type 1).
type ErrorMessage struct {
	Code           string
	Message        string
	MessageID      string
	ConversationID string
}

func (m ErrorMessage) ToValue() Value {
	out := NewMap(E("code", String(m.Code)), E("message", String(m.Message)))
	out.SetIf(m.MessageID != "", "messageId", String(m.MessageID))
	out.SetIf(m.ConversationID != "", "conversationId", String(m.ConversationID))
	return out
}

func ParseErrorMessage(v Value) (ErrorMessage, error) {
	m, err := bodyMap(v, "error")
	if err != nil {
		return ErrorMessage{}, err
	}
	msg, err := requireString(m, "error", "message")
	if err != nil {
		return ErrorMessage{}, err
	}
	code := optString(m, "code")
	if n, ok := m.GetInt("code"); ok {
		code = fmt.Sprint(n)
	}
	return ErrorMessage{
		Code:           code,
		Message:        msg,
		MessageID:      optString(m, "messageId"),
		ConversationID: optString(m, "conversationId"),
	}, nil
}

// UserMessage is a user turn (type 2), sent by the device and echoed back.
type UserMessage struct {
	ID             string
	ConversationID string
	Content        string
	PreviousID     string
}

func (m UserMessage) ToValue() Value {
	out := NewMap(E("id", String(m.ID)), E("content", String(m.Content)))
	out.SetIf(m.PreviousID != "", "previousId", String(m.PreviousID))
	out.SetIf(m.ConversationID != "", "conversationId", String(m.ConversationID))
	return out
}

func ParseUserMessage(v Value) (UserMessage, error) {
	m, err := bodyMap(v, "user message")
	if err != nil {
		return UserMessage{}, err
	}
	id, err := requireString(m, "user message", "id")
	if err != nil {
		return UserMessage{}, err
	}
	return UserMessage{
		ID:             id,
		ConversationID: optString(m, "conversationId"),
		Content:        optString(m, "content"),
		PreviousID:     optString(m, "previousId"),
	}, nil
}

// AssistantMessage is an agent reply (type 3).
type AssistantMessage struct {
	ID             string
	ConversationID string
	Content        string
	PreviousID     string
	Reasoning      string
	Timestamp      int64
}

func (m AssistantMessage) ToValue() Value {
	out := NewMap(E("id", String(m.ID)), E("content", String(m.Content)))
	out.SetIf(m.PreviousID != "", "previousId", String(m.PreviousID))
	out.SetIf(m.ConversationID != "", "conversationId", String(m.ConversationID))
	out.SetIf(m.Reasoning != "", "reasoning", String(m.Reasoning))
	out.SetIf(m.Timestamp != 0, "timestamp", Int(m.Timestamp))
	return out
}

func ParseAssistantMessage(v Value) (AssistantMessage, error) {
	m, err := bodyMap(v, "assistant message")
	if err != nil {
		return AssistantMessage{}, err
	}
	id, err := requireString(m, "assistant message", "id")
	if err != nil {
		return AssistantMessage{}, err
	}
	ts, _ := m.GetInt("timestamp")
	return AssistantMessage{
		ID:             id,
		ConversationID: optString(m, "conversationId"),
		Content:        optString(m, "content"),
		PreviousID:     optString(m, "previousId"),
		Reasoning:      optString(m, "reasoning"),
		Timestamp:      ts,
	}, nil
}

// ToolUseRequest asks for a tool execution (type 6).
type ToolUseRequest struct {
	ID             string
	MessageID      string
	ConversationID string
	ToolName       string
	Arguments      Map
	Execution      string
}

// IsClient reports whether the device is expected to run the tool.
func (r ToolUseRequest) IsClient() bool {
	return r.Execution == ExecutionClient
}

func (r ToolUseRequest) ToValue() Value {
	args := r.Arguments
	if args == nil {
		args = Map{}
	}
	out := NewMap(
		E("id", String(r.ID)),
		E("toolName", String(r.ToolName)),
		E("arguments", args),
	)
	out.SetIf(r.Execution != "", "execution", String(r.Execution))
	out.SetIf(r.MessageID != "", "messageId", String(r.MessageID))
	out.SetIf(r.ConversationID != "", "conversationId", String(r.ConversationID))
	return out
}

func ParseToolUseRequest(v Value) (ToolUseRequest, error) {
	m, err := bodyMap(v, "tool use request")
	if err != nil {
		return ToolUseRequest{}, err
	}
	id, err := requireString(m, "tool use request", "id")
	if err != nil {
		return ToolUseRequest{}, err
	}
	name, err := requireString(m, "tool use request", "toolName")
	if err != nil {
		return ToolUseRequest{}, err
	}
	args := Map{}
	if raw, ok := m.Get("arguments"); ok {
		switch a := raw.(type) {
		case Map:
			args = a
		case Nil:
		default:
			return ToolUseRequest{}, fmt.Errorf("tool use request: arguments is %s, want map", raw.Kind())
		}
	}
	return ToolUseRequest{
		ID:             id,
		MessageID:      optString(m, "messageId"),
		ConversationID: optString(m, "conversationId"),
		ToolName:       name,
		Arguments:      args,
		Execution:      optString(m, "execution"),
	}, nil
}

// ToolUseResult answers a tool request (type 7). Inbound, the same shape acts
// as the completion notice for server-side executions.
type ToolUseResult struct {
	ID             string
	RequestID      string
	MessageID      string
	ConversationID string
	Success        bool
	Result         Value
	Error          string
}

func (r ToolUseResult) ToValue() Value {
	out := NewMap(
		E("id", String(r.ID)),
		E("requestId", String(r.RequestID)),
		E("conversationId", String(r.ConversationID)),
		E("success", Bool(r.Success)),
	)
	out.SetIf(r.MessageID != "", "messageId", String(r.MessageID))
	if r.Success {
		out.Set("result", orNil(r.Result))
	} else {
		out.Set("error", String(r.Error))
	}
	return out
}

func ParseToolUseResult(v Value) (ToolUseResult, error) {
	m, err := bodyMap(v, "tool use result")
	if err != nil {
		return ToolUseResult{}, err
	}
	requestID, err := requireString(m, "tool use result", "requestId")
	if err != nil {
		return ToolUseResult{}, err
	}
	success, _ := m.GetBool("success")
	result, ok := m.Get("result")
	if !ok {
		result = Nil{}
	}
	return ToolUseResult{
		ID:             optString(m, "id"),
		RequestID:      requestID,
		MessageID:      optString(m, "messageId"),
		ConversationID: optString(m, "conversationId"),
		Success:        success,
		Result:         result,
		Error:          optString(m, "error"),
	}, nil
}

// ThinkingSummary reports agent progress on a message (type 34).
type ThinkingSummary struct {
	ID             string
	MessageID      string
	ConversationID string
	Content        string
	Progress       float64
	Timestamp      int64
}

func (s ThinkingSummary) ToValue() Value {
	out := NewMap(
		E("messageId", String(s.MessageID)),
		E("content", String(s.Content)),
		E("progress", Float(s.Progress)),
	)
	out.SetIf(s.ID != "", "id", String(s.ID))
	out.SetIf(s.ConversationID != "", "conversationId", String(s.ConversationID))
	out.SetIf(s.Timestamp != 0, "timestamp", Int(s.Timestamp))
	return out
}

func ParseThinkingSummary(v Value) (ThinkingSummary, error) {
	m, err := bodyMap(v, "thinking summary")
	if err != nil {
		return ThinkingSummary{}, err
	}
	messageID, err := requireString(m, "thinking summary", "messageId")
	if err != nil {
		return ThinkingSummary{}, err
	}
	progress, _ := m.GetFloat("progress")
	ts, _ := m.GetInt("timestamp")
	return ThinkingSummary{
		ID:             optString(m, "id"),
		MessageID:      messageID,
		ConversationID: optString(m, "conversationId"),
		Content:        optString(m, "content"),
		Progress:       progress,
		Timestamp:      ts,
	}, nil
}

// TitleUpdate renames a conversation (type 35).
type TitleUpdate struct {
	ConversationID string
	Title          string
}

func (t TitleUpdate) ToValue() Value {
	return NewMap(E("conversationId", String(t.ConversationID)), E("title", String(t.Title)))
}

func ParseTitleUpdate(v Value) (TitleUpdate, error) {
	m, err := bodyMap(v, "title update")
	if err != nil {
		return TitleUpdate{}, err
	}
	id, err := requireString(m, "title update", "conversationId")
	if err != nil {
		return TitleUpdate{}, err
	}
	return TitleUpdate{ConversationID: id, Title: optString(m, "title")}, nil
}

// Subscribe declares interest in assistant mode or one conversation (type 40).
type Subscribe struct {
	ConversationID string
	AssistantMode  bool
}

func (s Subscribe) ToValue() Value {
	out := Map{}
	out.SetIf(s.AssistantMode, "assistantMode", Bool(true))
	out.SetIf(s.ConversationID != "", "conversationId", String(s.ConversationID))
	return out
}

// Unsubscribe drops a conversation subscription (type 41).
type Unsubscribe struct {
	ConversationID string
}

func (u Unsubscribe) ToValue() Value {
	return NewMap(E("conversationId", String(u.ConversationID)))
}

// SubscribeAck confirms or rejects a subscribe frame (type 42).
type SubscribeAck struct {
	ConversationID string
	Success        bool
	Error          string
}

func (a SubscribeAck) ToValue() Value {
	out := NewMap(E("success", Bool(a.Success)))
	out.SetIf(a.Error != "", "error", String(a.Error))
	out.SetIf(a.ConversationID != "", "conversationId", String(a.ConversationID))
	return out
}

func ParseSubscribeAck(v Value) (SubscribeAck, error) {
	m, err := bodyMap(v, "subscribe ack")
	if err != nil {
		return SubscribeAck{}, err
	}
	success, _ := m.GetBool("success")
	return SubscribeAck{
		ConversationID: optString(m, "conversationId"),
		Success:        success,
		Error:          optString(m, "error"),
	}, nil
}

// UnsubscribeAck confirms an unsubscribe frame (type 43).
type UnsubscribeAck struct {
	ConversationID string
	Success        bool
}

func (a UnsubscribeAck) ToValue() Value {
	return NewMap(E("conversationId", String(a.ConversationID)), E("success", Bool(a.Success)))
}

func ParseUnsubscribeAck(v Value) (UnsubscribeAck, error) {
	m, err := bodyMap(v, "unsubscribe ack")
	if err != nil {
		return UnsubscribeAck{}, err
	}
	success, _ := m.GetBool("success")
	return UnsubscribeAck{ConversationID: optString(m, "conversationId"), Success: success}, nil
}

// ToolDescriptor describes one device tool to the agent.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema Value
}

func (d ToolDescriptor) ToValue() Value {
	schema := d.InputSchema
	if schema == nil {
		schema = NewMap(E("type", String("object")))
	}
	return NewMap(
		E("name", String(d.Name)),
		E("description", String(d.Description)),
		E("inputSchema", schema),
	)
}

// ToolsRegister announces the device tool set (type 70).
type ToolsRegister struct {
	Tools []ToolDescriptor
}

func (r ToolsRegister) ToValue() Value {
	tools := make(List, 0, len(r.Tools))
	for _, d := range r.Tools {
		tools = append(tools, d.ToValue())
	}
	return NewMap(E("tools", tools))
}

func ParseToolsRegister(v Value) (ToolsRegister, error) {
	m, err := bodyMap(v, "tools register")
	if err != nil {
		return ToolsRegister{}, err
	}
	list, ok := m.GetList("tools")
	if !ok {
		return ToolsRegister{}, fmt.Errorf("tools register: missing tools")
	}
	out := ToolsRegister{Tools: make([]ToolDescriptor, 0, len(list))}
	for i, item := range list {
		dm, ok := item.(Map)
		if !ok {
			return ToolsRegister{}, fmt.Errorf("tools register: tool %d: %w", i, ErrNotMap)
		}
		name, err := requireString(dm, "tools register", "name")
		if err != nil {
			return ToolsRegister{}, err
		}
		schema, ok := dm.Get("inputSchema")
		if !ok {
			schema = Nil{}
		}
		out.Tools = append(out.Tools, ToolDescriptor{
			Name:        name,
			Description: optString(dm, "description"),
			InputSchema: schema,
		})
	}
	return out, nil
}

// ToolsAck confirms a tool registration (type 71). A missing success field
// counts as success.
type ToolsAck struct {
	ToolCount int
	Success   bool
	Error     string
}

func (a ToolsAck) ToValue() Value {
	out := NewMap(E("toolCount", Int(a.ToolCount)), E("success", Bool(a.Success)))
	out.SetIf(a.Error != "", "error", String(a.Error))
	return out
}

func ParseToolsAck(v Value) (ToolsAck, error) {
	m, err := bodyMap(v, "tools ack")
	if err != nil {
		return ToolsAck{}, err
	}
	count, _ := m.GetInt("toolCount")
	success, ok := m.GetBool("success")
	if !ok {
		success = true
	}
	return ToolsAck{ToolCount: int(count), Success: success, Error: optString(m, "error")}, nil
}

// Heartbeat is the empty liveness body (type 72).
type Heartbeat struct{}

func (Heartbeat) ToValue() Value {
	return Map{}
}

func bodyMap(v Value, what string) (Map, error) {
	m, ok := orNil(v).(Map)
	if !ok {
		return nil, fmt.Errorf("%s: %w", what, ErrNotMap)
	}
	return m, nil
}

func requireString(m Map, what, key string) (string, error) {
	s, ok := m.GetString(key)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: missing %s", what, key)
	}
	return s, nil
}

func optString(m Map, key string) string {
	s, _ := m.GetString(key)
	return s
}
