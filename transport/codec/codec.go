// Package codec provides serialization implementations for envelopes and wire
// messages carried between processes.
//
// Supported formats:
//   - JSON (default, UTF-8 text)
//   - MessagePack (binary, compact)
//   - Protocol Buffers (binary, values carried as structpb.Value)
package codec

import (
	"errors"
	"fmt"
)

// Codec errors
var (
	ErrEncodeFailure = errors.New("failed to encode message")
	ErrDecodeFailure = errors.New("failed to decode message")
	ErrUnknownCodec  = errors.New("unknown codec")
)

// Codec serializes values for external transports.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Marshal serializes v.
	// Returns an error wrapping ErrEncodeFailure if serialization fails.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v, which must be a pointer.
	// Returns an error wrapping ErrDecodeFailure if deserialization fails.
	Unmarshal(data []byte, v any) error

	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Name returns a short identifier for this codec (e.g., "json", "msgpack", "proto").
	Name() string
}

// Default returns the default codec (JSON)
func Default() Codec {
	return JSON{}
}

// ByName resolves a codec by its short name. An empty name selects the default.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	case "proto":
		return Proto{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
