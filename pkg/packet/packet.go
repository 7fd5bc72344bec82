// Package packet defines the opaque, codec-agnostic packet payload that
// flows through the hook pipeline. The real wire codec (framing, varints,
// compression, encryption, per-packet schemas) is an external collaborator;
// this package only models the shape hooks need to read and mutate data.
package packet

import "fmt"

// Kind discriminates the variant stored in a Value.
type Kind int

// Value kinds. A Value is always exactly one of these.
const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindList
	KindMap
)

// Value is a single node in a packet payload tree: a primitive, a byte
// string, or a composite (List/Map) of further Values. Packet schemas in
// the real codec decode into a tree of these before hooks see them, and
// re-encode from the (possibly mutated) tree afterward.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	bs   []byte
	list []Value
	m    map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a bool.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int64 wraps an int64.
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

// Float64 wraps a float64.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// String wraps a string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bytes wraps a byte slice. The slice is stored by reference.
func Bytes(v []byte) Value { return Value{kind: KindBytes, bs: v} }

// List wraps an ordered sequence of Values.
func List(v ...Value) Value { return Value{kind: KindList, list: v} }

// Map wraps a string-keyed collection of Values.
func Map(v map[string]Value) Value {
	if v == nil {
		v = map[string]Value{}
	}
	return Value{kind: KindMap, m: v}
}

// Kind returns the value's discriminant.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the wrapped bool and whether the Value is a KindBool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int64 returns the wrapped int64 and whether the Value is a KindInt64.
func (v Value) Int64() (int64, bool) { return v.i, v.kind == KindInt64 }

// Float64 returns the wrapped float64 and whether the Value is a KindFloat64.
func (v Value) Float64() (float64, bool) { return v.f, v.kind == KindFloat64 }

// String returns the wrapped string and whether the Value is a KindString.
func (v Value) String() (string, bool) { return v.s, v.kind == KindString }

// Bytes returns the wrapped byte slice and whether the Value is a KindBytes.
func (v Value) Bytes() ([]byte, bool) { return v.bs, v.kind == KindBytes }

// List returns the wrapped slice and whether the Value is a KindList.
// The returned slice aliases internal storage; mutating it mutates v.
func (v Value) List() ([]Value, bool) { return v.list, v.kind == KindList }

// Map returns the wrapped map and whether the Value is a KindMap.
// The returned map aliases internal storage; mutating it mutates v.
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Get looks up a key in a KindMap value. Returns the zero Value and false
// if v is not a map or the key is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.m[key]
	return val, ok
}

// Set mutates a KindMap value in place, setting key to val. Panics if v is
// not a map — callers that build payloads should construct via Map(...).
func (v Value) Set(key string, val Value) {
	if v.kind != KindMap {
		panic(fmt.Sprintf("packet: Set on non-map Value (kind=%d)", v.kind))
	}
	v.m[key] = val
}

// Meta mirrors the wire codec's per-packet metadata (spec: meta.name, meta.state).
type Meta struct {
	Name  string
	State string
}
