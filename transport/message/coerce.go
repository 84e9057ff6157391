package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Coercion errors
var (
	ErrTypeMismatch = errors.New("type mismatch")
	ErrNilValue     = errors.New("nil value")
	ErrOutOfRange   = errors.New("number out of range")
)

// CoerceError describes a failed coercion.
type CoerceError struct {
	Value  any
	Target reflect.Type
	Err    error
}

func (e *CoerceError) Error() string {
	return fmt.Sprintf("cannot coerce %T to %v: %v", e.Value, e.Target, e.Err)
}

func (e *CoerceError) Unwrap() []error {
	return []error{ErrTypeMismatch, e.Err}
}

var timeType = reflect.TypeOf(time.Time{})

// Coerce converts v to T on a best-effort basis:
//   - values already of type T are returned as is
//   - numbers convert between numeric types when the value fits the target;
//     floats convert to integers only when whole
//   - named string and bool types convert to each other
//   - RFC 3339 strings convert to time.Time
//   - anything else goes through a JSON round trip, which turns decoded maps
//     back into structs
//
// Coerce never panics; failures return a *CoerceError matching ErrTypeMismatch.
func Coerce[T any](v any) (T, error) {
	var zero T
	if val, ok := v.(Value); ok {
		v = val.Interface()
	}
	if out, ok := v.(T); ok {
		return out, nil
	}

	target := reflect.TypeOf((*T)(nil)).Elem()
	if v == nil {
		switch target.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			return zero, nil
		}
		return zero, &CoerceError{Target: target, Err: ErrNilValue}
	}

	rv := reflect.ValueOf(v)
	if out, ok := convertScalar(rv, target); ok {
		return out.Interface().(T), nil
	}
	if isNumber(rv.Kind()) && isNumber(target.Kind()) {
		return zero, &CoerceError{Value: v, Target: target, Err: ErrOutOfRange}
	}

	if target == timeType {
		if s, ok := v.(string); ok {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return zero, &CoerceError{Value: v, Target: target, Err: err}
			}
			return any(ts).(T), nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return zero, &CoerceError{Value: v, Target: target, Err: err}
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &CoerceError{Value: v, Target: target, Err: err}
	}
	return out, nil
}

// convertScalar converts between numeric, string and bool kinds. Numeric
// conversions that would wrap, truncate or overflow are refused.
func convertScalar(rv reflect.Value, target reflect.Type) (reflect.Value, bool) {
	src := rv.Kind()
	dst := target.Kind()
	out := reflect.New(target).Elem()

	switch {
	case isInt(src):
		n := rv.Int()
		switch {
		case isInt(dst):
			if out.OverflowInt(n) {
				return reflect.Value{}, false
			}
			out.SetInt(n)
		case isUint(dst):
			if n < 0 || out.OverflowUint(uint64(n)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(n))
		case isFloat(dst):
			out.SetFloat(float64(n))
		default:
			return reflect.Value{}, false
		}
	case isUint(src):
		u := rv.Uint()
		switch {
		case isInt(dst):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(u))
		case isUint(dst):
			if out.OverflowUint(u) {
				return reflect.Value{}, false
			}
			out.SetUint(u)
		case isFloat(dst):
			out.SetFloat(float64(u))
		default:
			return reflect.Value{}, false
		}
	case isFloat(src):
		f := rv.Float()
		switch {
		case isFloat(dst):
			if out.OverflowFloat(f) {
				return reflect.Value{}, false
			}
			out.SetFloat(f)
		case isInt(dst):
			// -2^63 is exact in float64; 2^63 is one past MaxInt64
			if !whole(f) || f < math.MinInt64 || f >= 1<<63 || out.OverflowInt(int64(f)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(f))
		case isUint(dst):
			if !whole(f) || f < 0 || f >= 1<<64 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(f))
		default:
			return reflect.Value{}, false
		}
	case src == reflect.String && dst == reflect.String:
		return rv.Convert(target), true
	case src == reflect.Bool && dst == reflect.Bool:
		return rv.Convert(target), true
	default:
		return reflect.Value{}, false
	}
	return out, true
}

func whole(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k)
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
