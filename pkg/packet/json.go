package packet

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// wireValue is the flat, discriminated-by-kind JSON shape a Value
// round-trips through. It exists only at the transport boundary (the
// reference websocket Transport): the hook pipeline and everything else
// in this module works with Value directly.
type wireValue struct {
	Kind  string            `json:"kind"`
	Bool  bool              `json:"bool,omitempty"`
	Int   int64             `json:"int,omitempty"`
	Float float64           `json:"float,omitempty"`
	Str   string            `json:"str,omitempty"`
	Bytes string            `json:"bytes,omitempty"` // base64
	List  []wireValue       `json:"list,omitempty"`
	Map   map[string]wireValue `json:"map,omitempty"`
}

func (v Value) toWire() wireValue {
	switch v.kind {
	case KindNull:
		return wireValue{Kind: "null"}
	case KindBool:
		return wireValue{Kind: "bool", Bool: v.b}
	case KindInt64:
		return wireValue{Kind: "int", Int: v.i}
	case KindFloat64:
		return wireValue{Kind: "float", Float: v.f}
	case KindString:
		return wireValue{Kind: "string", Str: v.s}
	case KindBytes:
		return wireValue{Kind: "bytes", Bytes: base64.StdEncoding.EncodeToString(v.bs)}
	case KindList:
		out := make([]wireValue, len(v.list))
		for i, item := range v.list {
			out[i] = item.toWire()
		}
		return wireValue{Kind: "list", List: out}
	case KindMap:
		out := make(map[string]wireValue, len(v.m))
		for k, item := range v.m {
			out[k] = item.toWire()
		}
		return wireValue{Kind: "map", Map: out}
	default:
		return wireValue{Kind: "null"}
	}
}

func fromWire(w wireValue) (Value, error) {
	switch w.Kind {
	case "", "null":
		return Null(), nil
	case "bool":
		return Bool(w.Bool), nil
	case "int":
		return Int64(w.Int), nil
	case "float":
		return Float64(w.Float), nil
	case "string":
		return String(w.Str), nil
	case "bytes":
		raw, err := base64.StdEncoding.DecodeString(w.Bytes)
		if err != nil {
			return Value{}, fmt.Errorf("packet: decoding bytes value: %w", err)
		}
		return Bytes(raw), nil
	case "list":
		items := make([]Value, len(w.List))
		for i, item := range w.List {
			v, err := fromWire(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return List(items...), nil
	case "map":
		m := make(map[string]Value, len(w.Map))
		for k, item := range w.Map {
			v, err := fromWire(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("packet: unknown wire kind %q", w.Kind)
	}
}

// MarshalJSON implements json.Marshaler, flattening Value's private
// discriminated-union representation to a tagged JSON object. Used only
// by the reference websocket Transport (internal/transport); the real
// wire codec described in spec.md §1/§6 would encode packet schemas
// directly rather than through this generic envelope.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toWire())
}

// UnmarshalJSON implements json.Unmarshaler, the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := fromWire(w)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
