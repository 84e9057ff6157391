package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"syreclabs.com/go/faker"
)

func init() {
	faker.Seed(time.Now().UnixNano())
}

func roundTripInputs() []string {
	return []string{
		"",
		"hello",
		"héllo wörld",
		"温度が更新されました",
		"emoji 🌡️ 21.5°C",
		faker.Lorem().Paragraph(5),
		faker.Name().Name(),
	}
}

func TestEncodeHeader(t *testing.T) {
	out := EncodeString("héllo")
	if len(out) != HeaderSize+6 {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+6, len(out))
	}
	if n := binary.LittleEndian.Uint32(out); n != 6 {
		t.Errorf("expected length 6 (utf-8 bytes), got %d", n)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range roundTripInputs() {
		msg, rest, ok := TryDecode(EncodeString(s))
		if !ok {
			t.Fatalf("TryDecode(%q) not ok", s)
		}
		if string(msg) != s {
			t.Errorf("expected %q, got %q", s, msg)
		}
		if len(rest) != 0 {
			t.Errorf("expected empty remainder, got %d bytes", len(rest))
		}

		d := NewDecoder()
		d.Write(EncodeString(s))
		got, ok, err := d.NextString()
		if err != nil || !ok {
			t.Fatalf("NextString(%q): ok=%v err=%v", s, ok, err)
		}
		if got != s {
			t.Errorf("expected %q, got %q", s, got)
		}
		if d.Buffered() != 0 {
			t.Errorf("expected empty buffer, got %d", d.Buffered())
		}
	}
}

func TestTryDecodeIncomplete(t *testing.T) {
	t.Run("short header", func(t *testing.T) {
		buf := []byte{1, 0}
		_, rest, ok := TryDecode(buf)
		if ok {
			t.Fatal("expected not ok")
		}
		if !bytes.Equal(rest, buf) {
			t.Error("buffer must be left untouched")
		}
	})

	t.Run("short body", func(t *testing.T) {
		buf := EncodeString("abcdef")[:7]
		_, rest, ok := TryDecode(buf)
		if ok {
			t.Fatal("expected not ok")
		}
		if len(rest) != 7 {
			t.Errorf("expected 7 bytes retained, got %d", len(rest))
		}
	})

	t.Run("huge length waits", func(t *testing.T) {
		buf := []byte{0xff, 0xff, 0xff, 0xff, 'x'}
		if _, _, ok := TryDecode(buf); ok {
			t.Fatal("expected not ok")
		}
	})
}

func TestPartialFrames(t *testing.T) {
	for _, s := range roundTripInputs() {
		encoded := EncodeString(s)
		for split := 0; split <= len(encoded); split++ {
			d := NewDecoder()
			d.Write(encoded[:split])
			if split < len(encoded) {
				if _, ok, err := d.Next(); ok || err != nil {
					t.Fatalf("split %d of %q: expected not decodable, ok=%v err=%v", split, s, ok, err)
				}
			}
			d.Write(encoded[split:])
			got, ok, err := d.NextString()
			if err != nil || !ok {
				t.Fatalf("split %d of %q: ok=%v err=%v", split, s, ok, err)
			}
			if got != s {
				t.Errorf("split %d: expected %q, got %q", split, s, got)
			}
			if _, ok, _ := d.Next(); ok {
				t.Errorf("split %d: decoded more than one frame", split)
			}
		}
	}
}

func TestByteByByte(t *testing.T) {
	s := "temperature.updated"
	encoded := EncodeString(s)
	d := NewDecoder()
	decoded := 0
	for i, b := range encoded {
		d.Write([]byte{b})
		got, ok, err := d.NextString()
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			decoded++
			if i != len(encoded)-1 {
				t.Errorf("decoded early at byte %d", i)
			}
			if got != s {
				t.Errorf("expected %q, got %q", s, got)
			}
		}
	}
	if decoded != 1 {
		t.Errorf("expected exactly one decode, got %d", decoded)
	}
}

func TestMergedFrames(t *testing.T) {
	inputs := []string{"one", "", "three", "ünïcode"}
	var stream []byte
	for _, s := range inputs {
		stream = append(stream, EncodeString(s)...)
	}

	d := NewDecoder()
	d.Write(stream)
	var got []string
	for {
		s, ok, err := d.NextString()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, s)
	}
	if diff := cmp.Diff(inputs, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if d.Buffered() != 0 {
		t.Errorf("expected empty buffer, got %d", d.Buffered())
	}
}

func TestDecoderMaxSize(t *testing.T) {
	t.Run("oversized header rejected", func(t *testing.T) {
		d := NewDecoder(WithMaxSize(8))
		d.Write(EncodeString("this body is too long"))
		_, ok, err := d.Next()
		if ok {
			t.Fatal("expected not ok")
		}
		if !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("expected ErrFrameTooLarge, got %v", err)
		}
	})

	t.Run("guard disabled waits", func(t *testing.T) {
		d := NewDecoder(WithMaxSize(0))
		d.Write([]byte{0xff, 0xff, 0xff, 0x7f})
		_, ok, err := d.Next()
		if ok || err != nil {
			t.Errorf("expected not decodable without error, ok=%v err=%v", ok, err)
		}
	})
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder()
	d.Write([]byte{1, 2, 3})
	d.Reset()
	if d.Buffered() != 0 {
		t.Errorf("expected empty buffer after reset, got %d", d.Buffered())
	}
}

func TestReadWrite(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []string{"a", "", "ß"} {
		if err := Write(&buf, []byte(s)); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"a", "", "ß"} {
		got, err := Read(&buf, 0)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if _, err := Read(&buf, 0); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}

	t.Run("max size", func(t *testing.T) {
		var b bytes.Buffer
		Write(&b, []byte("0123456789"))
		if _, err := Read(&b, 4); !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("expected ErrFrameTooLarge, got %v", err)
		}
	})

	t.Run("truncated body", func(t *testing.T) {
		b := bytes.NewReader(EncodeString("abcdef")[:6])
		if _, err := Read(b, 0); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("expected ErrUnexpectedEOF, got %v", err)
		}
	})
}

func TestBodySizeLimit(t *testing.T) {
	if err := checkBodySize(MaxBodySize); err != nil {
		t.Errorf("MaxBodySize must be accepted, got %v", err)
	}
	if err := checkBodySize(MaxBodySize + 1); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}
