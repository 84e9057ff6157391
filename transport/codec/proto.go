package codec

import (
	"encoding/json"
	"errors"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto implements Codec using Protocol Buffers serialization.
//
// Value handling:
//   - proto.Message values are marshaled directly
//   - Anything else is converted to a structpb.Value through its JSON form,
//     so every JSON-shaped value can travel as protobuf binary
//
// structpb numbers are doubles; integers above 2^53 lose precision.
type Proto struct{}

// Marshal serializes v to Protocol Buffer bytes
func (c Proto) Marshal(v any) ([]byte, error) {
	if pm, ok := v.(proto.Message); ok {
		data, err := proto.Marshal(pm)
		if err != nil {
			return nil, errors.Join(ErrEncodeFailure, err)
		}
		return data, nil
	}

	js, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	var sv structpb.Value
	if err := protojson.Unmarshal(js, &sv); err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	data, err := proto.Marshal(&sv)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Unmarshal deserializes Protocol Buffer bytes into v
func (c Proto) Unmarshal(data []byte, v any) error {
	if pm, ok := v.(proto.Message); ok {
		if err := proto.Unmarshal(data, pm); err != nil {
			return errors.Join(ErrDecodeFailure, err)
		}
		return nil
	}

	var sv structpb.Value
	if err := proto.Unmarshal(data, &sv); err != nil {
		return errors.Join(ErrDecodeFailure, err)
	}
	js, err := protojson.Marshal(&sv)
	if err != nil {
		return errors.Join(ErrDecodeFailure, err)
	}
	if err := json.Unmarshal(js, v); err != nil {
		return errors.Join(ErrDecodeFailure, err)
	}
	return nil
}

// ContentType returns the MIME type for Protocol Buffers
func (c Proto) ContentType() string {
	return "application/x-protobuf"
}

// Name returns the codec identifier
func (c Proto) Name() string {
	return "proto"
}

// Compile-time check
var _ Codec = Proto{}
