package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

const (
	maxDepth    = 64
	maxPrealloc = 1024
)

var (
	// ErrNotMap is returned when a frame or body that must be a map is not one.
	ErrNotMap = errors.New("value is not a map")
	// ErrMissingType is returned when an envelope carries no type field.
	ErrMissingType = errors.New("envelope type is missing")

	errTooDeep = errors.New("value nesting too deep")
)

// MarshalValue serializes a value tree to msgpack.
func MarshalValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(msgpack.NewEncoder(&buf), v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalValue parses a msgpack document into a value tree.
func UnmarshalValue(data []byte) (Value, error) {
	v, err := decodeValue(msgpack.NewDecoder(bytes.NewReader(data)), 0)
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// Encode serializes an envelope to a single binary frame.
func Encode(env Envelope) ([]byte, error) {
	data, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a binary frame. It never panics on malformed input.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := env.DecodeMsgpack(msgpack.NewDecoder(bytes.NewReader(data))); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (e Envelope) EncodeMsgpack(enc *msgpack.Encoder) error {
	fields := 2
	if e.ConversationID != "" {
		fields++
	}
	if err := enc.EncodeMapLen(fields); err != nil {
		return err
	}
	if e.ConversationID != "" {
		if err := enc.EncodeString("conversationId"); err != nil {
			return err
		}
		if err := enc.EncodeString(e.ConversationID); err != nil {
			return err
		}
	}
	if err := enc.EncodeString("type"); err != nil {
		return err
	}
	if err := enc.EncodeUint(uint64(e.Type)); err != nil {
		return err
	}
	if err := enc.EncodeString("body"); err != nil {
		return err
	}
	return encodeValue(enc, e.Body)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (e *Envelope) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := decodeValue(dec, 0)
	if err != nil {
		return err
	}
	m, ok := raw.(Map)
	if !ok {
		return ErrNotMap
	}

	typeValue, ok := m.Get("type")
	if !ok {
		return ErrMissingType
	}
	code, ok := AsInt(typeValue)
	if !ok || code < 0 || code > math.MaxUint16 {
		return fmt.Errorf("invalid envelope type %v", ToAny(typeValue))
	}

	var conversationID string
	if v, ok := m.Get("conversationId"); ok {
		switch id := v.(type) {
		case String:
			conversationID = string(id)
		case Nil:
		default:
			return fmt.Errorf("conversationId is %s, want string", v.Kind())
		}
	}

	body, ok := m.Get("body")
	if !ok {
		body = Nil{}
	}

	*e = Envelope{
		ConversationID: conversationID,
		Type:           MessageType(code),
		Body:           body,
	}
	return nil
}

func encodeValue(enc *msgpack.Encoder, v Value) error {
	switch tv := orNil(v).(type) {
	case Nil:
		return enc.EncodeNil()
	case Bool:
		return enc.EncodeBool(bool(tv))
	case Int:
		return enc.EncodeInt(int64(tv))
	case Float:
		return enc.EncodeFloat64(float64(tv))
	case String:
		return enc.EncodeString(string(tv))
	case Bytes:
		// EncodeBytes writes nil for a nil slice.
		if tv == nil {
			tv = Bytes{}
		}
		return enc.EncodeBytes(tv)
	case List:
		if err := enc.EncodeArrayLen(len(tv)); err != nil {
			return err
		}
		for _, item := range tv {
			if err := encodeValue(enc, item); err != nil {
				return err
			}
		}
		return nil
	case Map:
		if err := enc.EncodeMapLen(len(tv)); err != nil {
			return err
		}
		for _, entry := range tv {
			if err := enc.EncodeString(entry.Key); err != nil {
				return err
			}
			if err := encodeValue(enc, entry.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
}

func decodeValue(dec *msgpack.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, errTooDeep
	}
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		if err := dec.DecodeNil(); err != nil {
			return nil, err
		}
		return Nil{}, nil

	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		if err != nil {
			return nil, err
		}
		return Bool(b), nil

	case c == msgpcode.Uint64:
		n, err := dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", n)
		}
		return Int(int64(n)), nil

	case msgpcode.IsFixedNum(c),
		c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32,
		c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		n, err := dec.DecodeInt64()
		if err != nil {
			return nil, err
		}
		return Int(n), nil

	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		return Float(f), nil

	case msgpcode.IsFixedString(c), c == msgpcode.Str8, c == msgpcode.Str16, c == msgpcode.Str32:
		s, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		return String(s), nil

	case c == msgpcode.Bin8 || c == msgpcode.Bin16 || c == msgpcode.Bin32:
		b, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		if b == nil {
			b = []byte{}
		}
		return Bytes(b), nil

	case msgpcode.IsFixedArray(c), c == msgpcode.Array16, c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		list := make(List, 0, min(n, maxPrealloc))
		for i := 0; i < n; i++ {
			item, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil

	case msgpcode.IsFixedMap(c), c == msgpcode.Map16, c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		m := make(Map, 0, min(n, maxPrealloc))
		// index keeps duplicate detection linear; a repeated key overwrites
		// in place as Map.Set does.
		index := make(map[string]int, min(n, maxPrealloc))
		for i := 0; i < n; i++ {
			key, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			value, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, err
			}
			k := keyString(key)
			if at, ok := index[k]; ok {
				m[at].Value = value
				continue
			}
			index[k] = len(m)
			m = append(m, Entry{Key: k, Value: value})
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported msgpack code 0x%02x", c)
	}
}
