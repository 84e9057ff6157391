package message

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind tags the type of a Value on the wire.
type Kind string

const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindBytes  Kind = "bytes"
	KindObject Kind = "object"
)

// Value is a tagged parameter. Exactly one payload field is meaningful,
// selected by Kind, so every codec round-trips ints, floats and timestamps
// without guessing.
type Value struct {
	Kind   Kind       `json:"k"`
	Str    string     `json:"s,omitempty"`
	Int    int64      `json:"i,omitempty"`
	Float  float64    `json:"f,omitempty"`
	Bool   bool       `json:"b,omitempty"`
	Time   *time.Time `json:"t,omitempty"`
	Bytes  []byte     `json:"x,omitempty"`
	Object any        `json:"o,omitempty"`
}

// ValueOf wraps v in a tagged Value.
// Maps, slices and structs become KindObject and come back from the wire as
// generic maps and slices; use Coerce or As to recover a concrete type.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case Value:
		return x
	case *Value:
		if x == nil {
			return Value{Kind: KindNull}
		}
		return *x
	case string:
		return Value{Kind: KindString, Str: x}
	case bool:
		return Value{Kind: KindBool, Bool: x}
	case int:
		return Value{Kind: KindInt, Int: int64(x)}
	case int64:
		return Value{Kind: KindInt, Int: x}
	case int32:
		return Value{Kind: KindInt, Int: int64(x)}
	case float64:
		return Value{Kind: KindFloat, Float: x}
	case float32:
		return Value{Kind: KindFloat, Float: float64(x)}
	case time.Time:
		t := x
		return Value{Kind: KindTime, Time: &t}
	case []byte:
		return Value{Kind: KindBytes, Bytes: x}
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Value{Kind: KindInt, Int: i}
		}
		f, _ := strconv.ParseFloat(string(x), 64)
		return Value{Kind: KindFloat, Float: f}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Value{Kind: KindInt, Int: rv.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			// does not fit the signed wire integer
			return Value{Kind: KindFloat, Float: float64(u)}
		}
		return Value{Kind: KindInt, Int: int64(u)}
	case reflect.Float32, reflect.Float64:
		return Value{Kind: KindFloat, Float: rv.Float()}
	case reflect.String:
		return Value{Kind: KindString, Str: rv.String()}
	case reflect.Bool:
		return Value{Kind: KindBool, Bool: rv.Bool()}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{Kind: KindNull}
		}
	}
	return Value{Kind: KindObject, Object: v}
}

// Values wraps each element of args.
func Values(args []any) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = ValueOf(a)
	}
	return out
}

// Interface returns the Go value carried by v.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindTime:
		if v.Time == nil {
			return time.Time{}
		}
		return *v.Time
	case KindBytes:
		return v.Bytes
	case KindObject:
		return v.Object
	default:
		return nil
	}
}

// IsNull reports whether v carries no value.
func (v Value) IsNull() bool {
	return v.Kind == KindNull || v.Kind == ""
}

// Interfaces unwraps each value.
func Interfaces(vals []Value) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.Interface()
	}
	return out
}

// As coerces the value carried by v to T.
func As[T any](v Value) (T, error) {
	return Coerce[T](v.Interface())
}

// AsOr is As with a default returned on failure.
func AsOr[T any](v Value, def T) T {
	out, err := As[T](v)
	if err != nil {
		return def
	}
	return out
}
