// Package frame implements the length-prefixed framing used on the wire.
//
// A frame is a 4-byte little-endian length header followed by exactly that many
// body bytes. Bodies are usually UTF-8 text (JSON envelopes), but the codec does
// not interpret them.
//
// Decoding is incremental: bytes are accumulated in a Decoder as they arrive and
// Next returns one complete frame per call. A frame whose body has not fully
// arrived is "not yet decodable", never an error.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the size of the length prefix in bytes.
const HeaderSize = 4

// DefaultMaxSize is the default upper bound for a frame body (16 MiB).
var DefaultMaxSize uint32 = 16 << 20

// Frame errors
var (
	// ErrFrameTooLarge is returned when a header declares a body larger than the
	// configured maximum. The stream is corrupt or hostile and should be dropped.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// MaxBodySize is the largest body a 4-byte header can describe.
const MaxBodySize = math.MaxUint32

// Encode prepends the length header to body. body must not exceed
// MaxBodySize; use Write for a checked encode.
func Encode(body []byte) []byte {
	out := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	copy(out[HeaderSize:], body)
	return out
}

// EncodeString encodes the UTF-8 bytes of s as one frame.
func EncodeString(s string) []byte {
	return Encode([]byte(s))
}

// TryDecode extracts the first frame of buf.
// It returns ok=false, leaving buf untouched, when the header is incomplete or
// the declared body has not fully arrived. On success msg aliases buf and rest
// holds the bytes following the frame (zero length when nothing remains).
func TryDecode(buf []byte) (msg, rest []byte, ok bool) {
	if len(buf) < HeaderSize {
		return nil, buf, false
	}
	n := binary.LittleEndian.Uint32(buf)
	if uint64(len(buf)-HeaderSize) < uint64(n) {
		return nil, buf, false
	}
	end := HeaderSize + int(n)
	return buf[HeaderSize:end], buf[end:], true
}

// Write writes body to w as one frame. Bodies over MaxBodySize fail with
// ErrFrameTooLarge.
func Write(w io.Writer, body []byte) error {
	if err := checkBodySize(uint64(len(body))); err != nil {
		return err
	}
	_, err := w.Write(Encode(body))
	return err
}

func checkBodySize(n uint64) error {
	if n > MaxBodySize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, uint64(MaxBodySize))
	}
	return nil
}

// Read reads exactly one frame from r. A max of 0 disables the size check.
func Read(r io.Reader, max uint32) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if max > 0 && n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
