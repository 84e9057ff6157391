package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/eventbus/transport/codec"
)

// Envelope is the cross-process form of one publish.
// Source identifies the publishing bus so it can ignore its own broadcasts.
type Envelope struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Scope     string            `json:"scope"`
	Event     string            `json:"event"`
	Args      []Value           `json:"args"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEnvelope creates an envelope for a publish of args to event in scope.
func NewEnvelope(source, scope, event string, args []any) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Source:    source,
		Scope:     scope,
		Event:     event,
		Args:      Values(args),
		Timestamp: time.Now().UTC(),
	}
}

// Values returns the unwrapped argument vector.
func (e *Envelope) Values() []any {
	return Interfaces(e.Args)
}

// DecodeEnvelope deserializes an envelope. On failure it returns nil.
func DecodeEnvelope(c codec.Codec, data []byte) (*Envelope, error) {
	var e Envelope
	if err := c.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidEnvelope)
	}
	return &e, nil
}
