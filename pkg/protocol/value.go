package protocol

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a node of the wire value tree. The set of implementations is closed:
// Nil, Bool, Int, Float, String, Bytes, List and Map.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	// Nil is the absent value.
	Nil struct{}
	// Bool is a boolean value.
	Bool bool
	// Int is a signed 64-bit integer.
	Int int64
	// Float is a 64-bit float.
	Float float64
	// String is a UTF-8 string.
	String string
	// Bytes is an opaque byte blob.
	Bytes []byte
	// List is an ordered list of values.
	List []Value
	// Map is an ordered string-keyed map.
	Map []Entry
)

// Entry is a single key/value pair of a Map.
type Entry struct {
	Key   string
	Value Value
}

func (Nil) Kind() Kind    { return KindNil }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Bytes) Kind() Kind  { return KindBytes }
func (List) Kind() Kind   { return KindList }
func (Map) Kind() Kind    { return KindMap }

func (Nil) isValue()    {}
func (Bool) isValue()   {}
func (Int) isValue()    {}
func (Float) isValue()  {}
func (String) isValue() {}
func (Bytes) isValue()  {}
func (List) isValue()   {}
func (Map) isValue()    {}

// E builds a map entry.
func E(key string, value Value) Entry {
	return Entry{Key: key, Value: value}
}

// NewMap builds a map from entries. A later entry with a repeated key replaces
// the earlier one in place.
func NewMap(entries ...Entry) Map {
	m := make(Map, 0, len(entries))
	for _, e := range entries {
		m.Set(e.Key, e.Value)
	}
	return m
}

// Len returns the number of entries.
func (m Map) Len() int { return len(m) }

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (m Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key, keeping the original position of an existing key.
func (m *Map) Set(key string, value Value) {
	if value == nil {
		value = Nil{}
	}
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Entry{Key: key, Value: value})
}

// SetIf stores value only when cond is true. It keeps optional fields terse.
func (m *Map) SetIf(cond bool, key string, value Value) {
	if cond {
		m.Set(key, value)
	}
}

// Keys returns the keys in entry order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, e := range m {
		keys = append(keys, e.Key)
	}
	return keys
}

// GetString returns the string stored under key. Missing keys and other kinds
// report false.
func (m Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// GetInt returns the integer stored under key. Integral floats are accepted.
func (m Map) GetInt(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// GetFloat returns the number stored under key as a float64.
func (m Map) GetFloat(key string) (float64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case Float:
		return float64(n), true
	case Int:
		return float64(n), true
	default:
		return 0, false
	}
}

// GetBool returns the boolean stored under key.
func (m Map) GetBool(key string) (bool, bool) {
	v, ok := m.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(Bool)
	return bool(b), ok
}

// GetMap returns the nested map stored under key.
func (m Map) GetMap(key string) (Map, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	nested, ok := v.(Map)
	return nested, ok
}

// GetList returns the nested list stored under key.
func (m Map) GetList(key string) (List, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	l, ok := v.(List)
	return l, ok
}

// AsInt widens any integer-valued Value to int64.
func AsInt(v Value) (int64, bool) {
	switch n := v.(type) {
	case Int:
		return int64(n), true
	case Float:
		f := float64(n)
		if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// Equal reports structural equality. Map entries are compared by key, so two
// maps holding the same pairs in different order are equal.
func Equal(a, b Value) bool {
	a, b = orNil(a), orNil(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Nil:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Float:
		bv := b.(Float)
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv
	case String:
		return av == b.(String)
	case Bytes:
		return bytes.Equal(av, b.(Bytes))
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv := b.(Map)
		if len(av) != len(bv) {
			return false
		}
		for _, e := range av {
			other, ok := bv.Get(e.Key)
			if !ok || !Equal(e.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

func orNil(v Value) Value {
	if v == nil {
		return Nil{}
	}
	return v
}

// FromAny converts plain Go data (as produced by encoding/json or written by
// hand in tool implementations) into a Value.
func FromAny(in any) (Value, error) {
	switch v := in.(type) {
	case nil:
		return Nil{}, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint:
		return uintValue(uint64(v))
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case uint64:
		return uintValue(v)
	case float32:
		return Float(v), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	case []byte:
		return Bytes(v), nil
	case []any:
		out := make(List, 0, len(v))
		for _, item := range v {
			converted, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case []string:
		out := make(List, 0, len(v))
		for _, item := range v {
			out = append(out, String(item))
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Map, 0, len(v))
		for _, k := range keys {
			converted, err := FromAny(v[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out = append(out, Entry{Key: k, Value: converted})
		}
		return out, nil
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Map, 0, len(v))
		for _, k := range keys {
			out = append(out, Entry{Key: k, Value: String(v[k])})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", in)
	}
}

func uintValue(n uint64) (Value, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", n)
	}
	return Int(int64(n)), nil
}

// ToAny converts a Value into plain Go data suitable for encoding/json.
func ToAny(v Value) any {
	switch tv := orNil(v).(type) {
	case Nil:
		return nil
	case Bool:
		return bool(tv)
	case Int:
		return int64(tv)
	case Float:
		return float64(tv)
	case String:
		return string(tv)
	case Bytes:
		return []byte(tv)
	case List:
		out := make([]any, 0, len(tv))
		for _, item := range tv {
			out = append(out, ToAny(item))
		}
		return out
	case Map:
		out := make(map[string]any, len(tv))
		for _, e := range tv {
			out[e.Key] = ToAny(e.Value)
		}
		return out
	}
	return nil
}

// keyString coerces a decoded map key to its string form.
func keyString(v Value) string {
	switch k := orNil(v).(type) {
	case String:
		return string(k)
	case Int:
		return strconv.FormatInt(int64(k), 10)
	case Float:
		return strconv.FormatFloat(float64(k), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(k))
	case Bytes:
		return string(k)
	case Nil:
		return ""
	default:
		return fmt.Sprint(ToAny(k))
	}
}
