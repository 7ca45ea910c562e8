package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestParseToolUseRequest(t *testing.T) {
	body := NewMap(
		E("id", String("r1")),
		E("toolName", String("echo")),
		E("arguments", NewMap(E("x", Int(1)))),
		E("execution", String("client")),
		E("conversationId", String("c1")),
	)
	req, err := ParseToolUseRequest(body)
	if err != nil {
		t.Fatalf("ParseToolUseRequest returned error: %v", err)
	}
	if req.ID != "r1" || req.ToolName != "echo" || req.ConversationID != "c1" {
		t.Fatalf("request=%+v, want id r1 tool echo conversation c1", req)
	}
	if !req.IsClient() {
		t.Fatal("IsClient()=false, want true")
	}
	if n, _ := req.Arguments.GetInt("x"); n != 1 {
		t.Fatalf("arguments.x=%d, want 1", n)
	}
}

func TestParseToolUseRequestErrors(t *testing.T) {
	cases := map[string]struct {
		body Value
		want string
	}{
		"not a map":    {body: String("x"), want: "tool use request"},
		"missing id":   {body: NewMap(E("toolName", String("echo"))), want: "missing id"},
		"missing tool": {body: NewMap(E("id", String("r1"))), want: "missing toolName"},
		"bad args": {
			body: NewMap(E("id", String("r1")), E("toolName", String("echo")), E("arguments", List{})),
			want: "arguments",
		},
	}
	for name, tc := range cases {
		_, err := ParseToolUseRequest(tc.body)
		if err == nil {
			t.Fatalf("%s: error=nil, want non-nil", name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error=%q, want it to mention %q", name, err, tc.want)
		}
	}
	if _, err := ParseToolUseRequest(Int(1)); !errors.Is(err, ErrNotMap) {
		t.Fatalf("ParseToolUseRequest(int) err=%v, want %v", err, ErrNotMap)
	}
}

func TestToolUseRequestWithoutArguments(t *testing.T) {
	req, err := ParseToolUseRequest(NewMap(E("id", String("r1")), E("toolName", String("device_time"))))
	if err != nil {
		t.Fatalf("ParseToolUseRequest returned error: %v", err)
	}
	if req.Arguments == nil || req.Arguments.Len() != 0 {
		t.Fatalf("arguments=%v, want empty map", req.Arguments)
	}
	if req.IsClient() {
		t.Fatal("IsClient()=true, want false")
	}
}

func TestToolUseResultToValue(t *testing.T) {
	ok := ToolUseResult{
		ID:             "tu_1",
		RequestID:      "r1",
		ConversationID: "c1",
		Success:        true,
		Result:         NewMap(E("x", Int(1))),
	}.ToValue().(Map)
	if ok.Has("error") {
		t.Fatalf("success keys=%v, want no error", ok.Keys())
	}
	if result, _ := ok.GetMap("result"); !Equal(result, NewMap(E("x", Int(1)))) {
		t.Fatalf("result=%v, want {x:1}", ToAny(result))
	}

	failed := ToolUseResult{RequestID: "r2", Error: "Unknown tool: nope"}.ToValue().(Map)
	if failed.Has("result") {
		t.Fatalf("failure keys=%v, want no result", failed.Keys())
	}
	if msg, _ := failed.GetString("error"); msg != "Unknown tool: nope" {
		t.Fatalf("error=%q, want %q", msg, "Unknown tool: nope")
	}
	if success, _ := failed.GetBool("success"); success {
		t.Fatal("success=true, want false")
	}
}

func TestParseSubscribeAck(t *testing.T) {
	ack, err := ParseSubscribeAck(NewMap(E("success", Bool(true))))
	if err != nil {
		t.Fatalf("ParseSubscribeAck returned error: %v", err)
	}
	if !ack.Success || ack.ConversationID != "" {
		t.Fatalf("ack=%+v, want global success", ack)
	}
	ack, err = ParseSubscribeAck(NewMap(E("error", String("denied"))))
	if err != nil {
		t.Fatalf("ParseSubscribeAck returned error: %v", err)
	}
	if ack.Success || ack.Error != "denied" {
		t.Fatalf("ack=%+v, want failure with error", ack)
	}
}

func TestSubscribeToValue(t *testing.T) {
	global := Subscribe{AssistantMode: true}.ToValue().(Map)
	if b, _ := global.GetBool("assistantMode"); !b || global.Len() != 1 {
		t.Fatalf("global subscribe=%v, want {assistantMode:true}", ToAny(global))
	}
	conv := Subscribe{ConversationID: "c1"}.ToValue().(Map)
	if id, _ := conv.GetString("conversationId"); id != "c1" || conv.Has("assistantMode") {
		t.Fatalf("conversation subscribe=%v, want {conversationId:c1}", ToAny(conv))
	}
}

func TestToolsRegisterRoundTrip(t *testing.T) {
	reg := ToolsRegister{Tools: []ToolDescriptor{
		{Name: "echo", Description: "Echo", InputSchema: NewMap(E("type", String("object")))},
		{Name: "device_time"},
	}}
	got, err := ParseToolsRegister(reg.ToValue())
	if err != nil {
		t.Fatalf("ParseToolsRegister returned error: %v", err)
	}
	if len(got.Tools) != 2 || got.Tools[0].Name != "echo" || got.Tools[1].Name != "device_time" {
		t.Fatalf("tools=%+v, want echo and device_time", got.Tools)
	}
	if got.Tools[1].InputSchema.Kind() != KindMap {
		t.Fatalf("default schema kind=%s, want map", got.Tools[1].InputSchema.Kind())
	}
}

func TestParseToolsAckDefaultsToSuccess(t *testing.T) {
	ack, err := ParseToolsAck(NewMap(E("toolCount", Int(3))))
	if err != nil {
		t.Fatalf("ParseToolsAck returned error: %v", err)
	}
	if !ack.Success || ack.ToolCount != 3 {
		t.Fatalf("ack=%+v, want success with 3 tools", ack)
	}
}

func TestParseErrorMessageNumericCode(t *testing.T) {
	msg, err := ParseErrorMessage(NewMap(E("code", Int(404)), E("message", String("not found"))))
	if err != nil {
		t.Fatalf("ParseErrorMessage returned error: %v", err)
	}
	if msg.Code != "404" || msg.Message != "not found" {
		t.Fatalf("error message=%+v, want code 404", msg)
	}
	if _, err := ParseErrorMessage(NewMap(E("code", String("x")))); err == nil {
		t.Fatal("ParseErrorMessage(no message) error=nil, want non-nil")
	}
}

func TestParseThinkingSummary(t *testing.T) {
	s, err := ParseThinkingSummary(NewMap(
		E("messageId", String("m1")),
		E("content", String("searching")),
		E("progress", Int(1)),
	))
	if err != nil {
		t.Fatalf("ParseThinkingSummary returned error: %v", err)
	}
	if s.Progress != 1 || s.Content != "searching" {
		t.Fatalf("summary=%+v, want progress 1", s)
	}
}

func TestEncodeBody(t *testing.T) {
	data, err := EncodeBody("c1", TypeUserMessage, UserMessage{ID: "msg_1", Content: "hi", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("EncodeBody returned error: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	msg, err := ParseUserMessage(env.Body)
	if err != nil {
		t.Fatalf("ParseUserMessage returned error: %v", err)
	}
	if env.ConversationID != "c1" || msg.ID != "msg_1" || msg.Content != "hi" {
		t.Fatalf("decoded=%+v %+v, want c1/msg_1/hi", env, msg)
	}
}
