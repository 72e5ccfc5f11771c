package netrt

import "fmt"

// Kind discriminates the concrete shape stored in a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindBytes
	KindString
	KindSlice
	KindMap
)

// Value is a closed sum type representing anything MessagePack can
// decode: null, bool, integer, float, bytes, string, a list of Value,
// or a string-keyed map of Value. Application packet handlers receive
// payloads as Value (or map[string]Value for the common object-shaped
// payload) instead of a duck-typed interface{}, per spec.md's Design
// Notes on "Dictionary-of-anything payloads".
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	bytes []byte
	str   string
	slice []Value
	m     map[string]Value
}

func Nil() Value                { return Value{kind: KindNil} }
func Bool(v bool) Value         { return Value{kind: KindBool, b: v} }
func Int(v int64) Value         { return Value{kind: KindInt, i: v} }
func Float(v float64) Value     { return Value{kind: KindFloat, f: v} }
func Bytes(v []byte) Value      { return Value{kind: KindBytes, bytes: v} }
func String(v string) Value     { return Value{kind: KindString, str: v} }
func Slice(v []Value) Value     { return Value{kind: KindSlice, slice: v} }
func Map(v map[string]Value) Value { return Value{kind: KindMap, m: v} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) Bool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)             { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)         { return v.f, v.kind == KindFloat }
func (v Value) BytesVal() ([]byte, bool)       { return v.bytes, v.kind == KindBytes }
func (v Value) StringVal() (string, bool)      { return v.str, v.kind == KindString }
func (v Value) SliceVal() ([]Value, bool)      { return v.slice, v.kind == KindSlice }
func (v Value) MapVal() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Field looks up a key in a KindMap value; it returns a nil Value and
// false if v is not a map or the key is absent.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.m[key]
	return val, ok
}

func (v Value) String_() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBytes:
		return fmt.Sprintf("%x", v.bytes)
	case KindString:
		return v.str
	case KindSlice:
		return fmt.Sprintf("%v", v.slice)
	case KindMap:
		return fmt.Sprintf("%v", v.m)
	default:
		return "<invalid>"
	}
}

// valueFromDecoded converts the generic interface{} produced by the
// msgpack decoder into a Value tree.
func valueFromDecoded(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Nil()
	case bool:
		return Bool(t)
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case int:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case []byte:
		return Bytes(t)
	case string:
		return String(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = valueFromDecoded(e)
		}
		return Slice(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = valueFromDecoded(e)
		}
		return Map(out)
	case map[interface{}]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[fmt.Sprintf("%v", k)] = valueFromDecoded(e)
		}
		return Map(out)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// toDecoded converts a Value tree back into plain Go values suitable
// for msgpack encoding.
func (v Value) toDecoded() interface{} {
	switch v.kind {
	case KindNil:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBytes:
		return v.bytes
	case KindString:
		return v.str
	case KindSlice:
		out := make([]interface{}, len(v.slice))
		for i, e := range v.slice {
			out[i] = e.toDecoded()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = e.toDecoded()
		}
		return out
	default:
		return nil
	}
}

// ValueMap is a convenience constructor for building object-shaped
// payloads to send, e.g. ValueMap{"time": Int(t)}.
type ValueMap map[string]Value

func (m ValueMap) toValue() Value {
	return Map(map[string]Value(m))
}
