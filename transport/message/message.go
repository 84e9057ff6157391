// Package message provides the wire types exchanged between processes.
//
// A Message is the tagged parameter format used for commands: an ordered list
// of typed values where parameter 0 is conventionally the command name and
// parameters 1..N are its arguments. An Envelope is the serialized form of a
// single publish on a remote-enabled bus.
//
// Both types serialize through a codec.Codec; JSON is the default and keeps
// the wire format UTF-8 text.
package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/eventbus/transport/codec"
)

// Message errors
var (
	ErrArgMissing      = errors.New("argument missing")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Message is a command message travelling between processes.
type Message struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender,omitempty"`
	Target     string    `json:"target,omitempty"`
	Parameters []Value   `json:"parameters"`
	Timestamp  time.Time `json:"timestamp"`
}

// New creates a message whose first parameter is command.
func New(sender, target, command string, args ...any) *Message {
	params := make([]Value, 0, len(args)+1)
	params = append(params, ValueOf(command))
	for _, a := range args {
		params = append(params, ValueOf(a))
	}
	return &Message{
		ID:         uuid.NewString(),
		Sender:     sender,
		Target:     target,
		Parameters: params,
		Timestamp:  time.Now().UTC(),
	}
}

// Command returns parameter 0 when it is a string, or "".
func (m *Message) Command() string {
	if m == nil || len(m.Parameters) == 0 {
		return ""
	}
	if m.Parameters[0].Kind != KindString {
		return ""
	}
	return m.Parameters[0].Str
}

// Param returns the parameter at absolute index i.
func (m *Message) Param(i int) (Value, bool) {
	if m == nil || i < 0 || i >= len(m.Parameters) {
		return Value{}, false
	}
	return m.Parameters[i], true
}

// Args returns the parameters following the command.
func (m *Message) Args() []Value {
	if m == nil || len(m.Parameters) < 2 {
		return nil
	}
	return m.Parameters[1:]
}

// Arg returns argument i, counted from the first parameter after the command.
func (m *Message) Arg(i int) (Value, bool) {
	return m.Param(i + 1)
}

// ArgAs coerces argument i to T.
func ArgAs[T any](m *Message, i int) (T, error) {
	v, ok := m.Arg(i)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: index %d", ErrArgMissing, i)
	}
	return As[T](v)
}

// ArgOr is ArgAs with a default for missing or mismatched arguments.
func ArgOr[T any](m *Message, i int, def T) T {
	out, err := ArgAs[T](m, i)
	if err != nil {
		return def
	}
	return out
}

// Encode serializes a Message or Envelope with c.
func Encode(c codec.Codec, v any) ([]byte, error) {
	return c.Marshal(v)
}

// Decode deserializes a Message. On failure it returns a nil message.
func Decode(c codec.Codec, data []byte) (*Message, error) {
	var m Message
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
