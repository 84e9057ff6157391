package eventbus

import (
	"fmt"

	"github.com/rbaliyan/eventbus/transport/message"
)

// Args is the ordered argument vector of an event.
// A single-payload event carries the payload at index 0.
type Args []any

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// At returns argument i, or nil when i is out of range.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// Payload returns argument 0.
func (a Args) Payload() any {
	return a.At(0)
}

func (a Args) clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	copy(out, a)
	return out
}

// Arg coerces argument i to T.
// Arguments that crossed a bridge arrive in their wire form (numbers, maps)
// and are converted here.
func Arg[T any](a Args, i int) (T, error) {
	if i < 0 || i >= len(a) {
		var zero T
		return zero, fmt.Errorf("%w: index %d of %d", ErrArgMissing, i, len(a))
	}
	return message.Coerce[T](a[i])
}

// ArgOr coerces argument i to T, returning def when it is missing or has the wrong type.
func ArgOr[T any](a Args, i int, def T) T {
	v, err := Arg[T](a, i)
	if err != nil {
		return def
	}
	return v
}
