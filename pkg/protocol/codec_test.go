package protocol

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

func randomValue(r *rand.Rand, depth int) Value {
	kinds := 8
	if depth <= 0 {
		kinds = 6
	}
	switch r.IntN(kinds) {
	case 0:
		return Nil{}
	case 1:
		return Bool(r.IntN(2) == 1)
	case 2:
		switch r.IntN(3) {
		case 0:
			return Int(r.Int64())
		case 1:
			return Int(-r.Int64())
		default:
			return Int(r.IntN(256) - 128)
		}
	case 3:
		return Float(r.NormFloat64() * 1e6)
	case 4:
		buf := make([]byte, r.IntN(12))
		for i := range buf {
			buf[i] = byte('a' + r.IntN(26))
		}
		return String(buf)
	case 5:
		buf := make([]byte, r.IntN(16))
		for i := range buf {
			buf[i] = byte(r.IntN(256))
		}
		return Bytes(buf)
	case 6:
		n := r.IntN(5)
		list := make(List, 0, n)
		for i := 0; i < n; i++ {
			list = append(list, randomValue(r, depth-1))
		}
		return list
	default:
		n := r.IntN(5)
		m := Map{}
		for i := 0; i < n; i++ {
			m.Set("k"+strconv.Itoa(r.IntN(100)), randomValue(r, depth-1))
		}
		return m
	}
}

func TestValueRoundTripRandomTrees(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 42))
	for i := 0; i < 500; i++ {
		v := randomValue(r, 4)
		data, err := MarshalValue(v)
		if err != nil {
			t.Fatalf("MarshalValue(#%d) returned error: %v", i, err)
		}
		got, err := UnmarshalValue(data)
		if err != nil {
			t.Fatalf("UnmarshalValue(#%d) returned error: %v", i, err)
		}
		if !Equal(got, v) {
			t.Fatalf("round trip #%d=%v, want %v", i, ToAny(got), ToAny(v))
		}
	}
}

func TestValueRoundTripEdges(t *testing.T) {
	cases := []Value{
		Int(math.MaxInt64),
		Int(math.MinInt64),
		Int(0),
		Float(math.Inf(1)),
		Float(math.NaN()),
		String(""),
		Bytes(nil),
		List{},
		Map{},
		NewMap(E("nested", List{NewMap(E("deep", Bytes{0x00, 0xff}))})),
	}
	for _, v := range cases {
		data, err := MarshalValue(v)
		if err != nil {
			t.Fatalf("MarshalValue(%v) returned error: %v", ToAny(v), err)
		}
		got, err := UnmarshalValue(data)
		if err != nil {
			t.Fatalf("UnmarshalValue(%v) returned error: %v", ToAny(v), err)
		}
		if !Equal(got, v) {
			t.Fatalf("round trip=%v, want %v", ToAny(got), ToAny(v))
		}
	}
}

func TestValueMapOrderIgnoredByEqual(t *testing.T) {
	a := NewMap(E("a", Int(1)), E("b", Int(2)))
	b := NewMap(E("b", Int(2)), E("a", Int(1)))
	if !Equal(a, b) {
		t.Fatal("Equal(reordered maps)=false, want true")
	}
	if Equal(a, NewMap(E("a", Int(1)))) {
		t.Fatal("Equal(different sizes)=true, want false")
	}
}

func TestUnmarshalValueCoercesMapKeys(t *testing.T) {
	data, err := msgpack.Marshal(map[int]string{7: "seven"})
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	got, err := UnmarshalValue(data)
	if err != nil {
		t.Fatalf("UnmarshalValue returned error: %v", err)
	}
	m, ok := got.(Map)
	if !ok {
		t.Fatalf("kind=%s, want map", got.Kind())
	}
	if s, _ := m.GetString("7"); s != "seven" {
		t.Fatalf("m[\"7\"]=%q, want %q", s, "seven")
	}
}

func TestUnmarshalValueDuplicateKeysKeepFirstPosition(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	_ = enc.EncodeMapLen(3)
	for _, kv := range []struct {
		k string
		v int64
	}{{"a", 1}, {"b", 2}, {"a", 3}} {
		_ = enc.EncodeString(kv.k)
		_ = enc.EncodeInt(kv.v)
	}
	got, err := UnmarshalValue(buf.Bytes())
	if err != nil {
		t.Fatalf("UnmarshalValue returned error: %v", err)
	}
	m := got.(Map)
	if m.Len() != 2 || m[0].Key != "a" || m[1].Key != "b" {
		t.Fatalf("keys=%v, want [a b]", m.Keys())
	}
	if n, _ := m.GetInt("a"); n != 3 {
		t.Fatalf("a=%d, want 3", n)
	}
}

func TestUnmarshalValueLargeMapIsLinear(t *testing.T) {
	const keys = 50000
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(keys); err != nil {
		t.Fatalf("EncodeMapLen returned error: %v", err)
	}
	for i := 0; i < keys; i++ {
		_ = enc.EncodeString("key-" + strconv.Itoa(i))
		_ = enc.EncodeInt(int64(i))
	}

	start := time.Now()
	got, err := UnmarshalValue(buf.Bytes())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("UnmarshalValue returned error: %v", err)
	}
	if m := got.(Map); m.Len() != keys {
		t.Fatalf("len=%d, want %d", m.Len(), keys)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("decoding %d keys took %s, want under 2s", keys, elapsed)
	}
}

func TestUnmarshalValueRejectsUnsupported(t *testing.T) {
	overflow, err := msgpack.Marshal(uint64(math.MaxUint64))
	if err != nil {
		t.Fatalf("Marshal(uint64) returned error: %v", err)
	}
	ext, err := msgpack.Marshal(time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("Marshal(time) returned error: %v", err)
	}
	for name, data := range map[string][]byte{
		"uint64 overflow": overflow,
		"extension":       ext,
		"reserved code":   {0xc1},
		"truncated map":   {0x82, 0xa1, 'a'},
		"empty":           {},
	} {
		if _, err := UnmarshalValue(data); err == nil {
			t.Fatalf("UnmarshalValue(%s) error=nil, want non-nil", name)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope("conv-1", TypeAssistantMessage, NewMap(
		E("id", String("m1")),
		E("content", String("hello")),
	))
	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.ConversationID != env.ConversationID || got.Type != env.Type {
		t.Fatalf("envelope=%+v, want %+v", got, env)
	}
	if !Equal(got.Body, env.Body) {
		t.Fatalf("body=%v, want %v", ToAny(got.Body), ToAny(env.Body))
	}
}

func TestEnvelopeOmitsEmptyConversationID(t *testing.T) {
	data, err := Encode(NewEnvelope("", TypeAssistantHeartbeat, Heartbeat{}.ToValue()))
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	raw, err := UnmarshalValue(data)
	if err != nil {
		t.Fatalf("UnmarshalValue returned error: %v", err)
	}
	m := raw.(Map)
	if m.Has("conversationId") {
		t.Fatalf("keys=%v, want no conversationId", m.Keys())
	}
	if n, _ := m.GetInt("type"); n != int64(TypeAssistantHeartbeat) {
		t.Fatalf("type=%d, want %d", n, TypeAssistantHeartbeat)
	}
}

func TestDecodeAcceptsAnyIntegerWidth(t *testing.T) {
	for _, typ := range []any{int8(42), uint16(42), int32(42), uint64(42), float64(42)} {
		data, err := msgpack.Marshal(map[string]any{"type": typ, "body": map[string]any{"success": true}})
		if err != nil {
			t.Fatalf("Marshal(%T) returned error: %v", typ, err)
		}
		env, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%T) returned error: %v", typ, err)
		}
		if env.Type != TypeSubscribeAck {
			t.Fatalf("Decode(%T) type=%d, want %d", typ, env.Type, TypeSubscribeAck)
		}
	}
}

func TestDecodeSkipsUnknownKeys(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{
		"type":        2,
		"traceparent": "00-abc-def-01",
		"body":        map[string]any{"id": "u1"},
	})
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if env.Type != TypeUserMessage || env.ConversationID != "" {
		t.Fatalf("envelope=%+v, want type 2 without conversation", env)
	}
}

func TestDecodeErrors(t *testing.T) {
	missingType, _ := msgpack.Marshal(map[string]any{"body": nil})
	notMap, _ := msgpack.Marshal([]int{1, 2})
	badType, _ := msgpack.Marshal(map[string]any{"type": "two"})
	negative, _ := msgpack.Marshal(map[string]any{"type": -1})
	badConversation, _ := msgpack.Marshal(map[string]any{"type": 2, "conversationId": 5})

	if _, err := Decode(missingType); !errors.Is(err, ErrMissingType) {
		t.Fatalf("Decode(missing type) err=%v, want %v", err, ErrMissingType)
	}
	if _, err := Decode(notMap); !errors.Is(err, ErrNotMap) {
		t.Fatalf("Decode(array) err=%v, want %v", err, ErrNotMap)
	}
	for name, data := range map[string][]byte{
		"string type":      badType,
		"negative type":    negative,
		"int conversation": badConversation,
		"garbage":          {0xc1, 0x00},
		"nil":              {0xc0},
		"empty":            nil,
	} {
		if _, err := Decode(data); err == nil {
			t.Fatalf("Decode(%s) error=nil, want non-nil", name)
		}
	}
}

func TestAsInt(t *testing.T) {
	if n, ok := AsInt(Float(3)); !ok || n != 3 {
		t.Fatalf("AsInt(3.0)=%d,%v, want 3,true", n, ok)
	}
	if _, ok := AsInt(Float(3.5)); ok {
		t.Fatal("AsInt(3.5) ok=true, want false")
	}
	if _, ok := AsInt(Float(math.MaxInt64)); ok {
		t.Fatal("AsInt(2^63) ok=true, want false")
	}
	if _, ok := AsInt(String("3")); ok {
		t.Fatal("AsInt(\"3\") ok=true, want false")
	}
}

func TestFromAny(t *testing.T) {
	got, err := FromAny(map[string]any{"b": []any{1, "x"}, "a": nil})
	if err != nil {
		t.Fatalf("FromAny returned error: %v", err)
	}
	want := NewMap(E("a", Nil{}), E("b", List{Int(1), String("x")}))
	if !Equal(got, want) {
		t.Fatalf("FromAny=%v, want %v", ToAny(got), ToAny(want))
	}
	if keys := got.(Map).Keys(); keys[0] != "a" {
		t.Fatalf("keys=%v, want sorted", keys)
	}
	if _, err := FromAny(uint64(math.MaxUint64)); err == nil {
		t.Fatal("FromAny(MaxUint64) error=nil, want non-nil")
	}
	if _, err := FromAny(struct{}{}); err == nil {
		t.Fatal("FromAny(struct) error=nil, want non-nil")
	}
}
