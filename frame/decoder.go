package frame

import (
	"encoding/binary"
	"fmt"
)

// options holds configuration for a Decoder (unexported)
type options struct {
	maxSize uint32
}

// Option configures a Decoder
type Option func(*options)

// WithMaxSize sets the largest body the decoder accepts.
// Set to 0 to disable the check; an oversized header then simply waits for
// bytes that may never arrive.
func WithMaxSize(n uint32) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// Decoder accumulates stream bytes and splits them into frames.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	maxSize uint32
}

// NewDecoder creates an empty decoder.
func NewDecoder(opts ...Option) *Decoder {
	o := &options{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(o)
	}
	return &Decoder{maxSize: o.maxSize}
}

// Write appends p to the internal buffer. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting to be decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Next decodes one frame. It returns ok=false when no complete frame is
// buffered yet. The returned slice is owned by the caller.
func (d *Decoder) Next() ([]byte, bool, error) {
	if d.maxSize > 0 && len(d.buf) >= HeaderSize {
		if n := binary.LittleEndian.Uint32(d.buf); n > d.maxSize {
			return nil, false, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, d.maxSize)
		}
	}
	msg, rest, ok := TryDecode(d.buf)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(msg))
	copy(out, msg)

	if len(rest) == 0 {
		d.buf = d.buf[:0]
	} else {
		// compact so the buffer does not grow with consumed frames
		n := copy(d.buf, rest)
		d.buf = d.buf[:n]
	}
	return out, true, nil
}

// NextString is Next with the body returned as a string.
func (d *Decoder) NextString() (string, bool, error) {
	b, ok, err := d.Next()
	if !ok {
		return "", false, err
	}
	return string(b), true, nil
}
