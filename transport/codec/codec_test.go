package codec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type reading struct {
	Sensor string            `json:"sensor"`
	Value  float64           `json:"value"`
	OK     bool              `json:"ok"`
	Tags   map[string]string `json:"tags,omitempty"`
}

func allCodecs() []Codec {
	return []Codec{JSON{}, MsgPack{}, Proto{}}
}

func TestRoundTrip(t *testing.T) {
	in := reading{Sensor: "kitchen", Value: 21.5, OK: true, Tags: map[string]string{"unit": "C"}}

	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			var out reading
			if err := c.Unmarshal(data, &out); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if diff := cmp.Diff(in, out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeFailure(t *testing.T) {
	garbage := []byte{0xff, 0xff, 0xff, 0xff}
	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			var out reading
			err := c.Unmarshal(garbage, &out)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrDecodeFailure) {
				t.Errorf("expected ErrDecodeFailure, got %v", err)
			}
		})
	}
}

func TestEncodeFailure(t *testing.T) {
	for _, c := range []Codec{JSON{}, Proto{}} {
		if _, err := c.Marshal(make(chan int)); !errors.Is(err, ErrEncodeFailure) {
			t.Errorf("%s: expected ErrEncodeFailure, got %v", c.Name(), err)
		}
	}
}

func TestProtoMessagePassthrough(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"value": 21.5})
	if err != nil {
		t.Fatal(err)
	}
	data, err := Proto{}.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out := &structpb.Struct{}
	if err := (Proto{}).Unmarshal(data, out); err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(in, out) {
		t.Errorf("expected %v, got %v", in, out)
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "json"},
		{"json", "json"},
		{"msgpack", "msgpack"},
		{"proto", "proto"},
	}
	for _, tt := range tests {
		c, err := ByName(tt.name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", tt.name, err)
		}
		if c.Name() != tt.want {
			t.Errorf("ByName(%q) = %s, want %s", tt.name, c.Name(), tt.want)
		}
	}

	if _, err := ByName("xml"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestDefaultCodec(t *testing.T) {
	if Default().Name() != "json" {
		t.Errorf("expected default codec to be json, got %s", Default().Name())
	}
	if Default().ContentType() != "application/json" {
		t.Errorf("unexpected content type %s", Default().ContentType())
	}
}
