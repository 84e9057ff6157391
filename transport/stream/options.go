package stream

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus/frame"
	"github.com/rbaliyan/eventbus/transport"
)

// Default configuration values
var (
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadBuffer   = 32 * 1024
)

// options holds configuration for stream bridges (unexported)
type options struct {
	maxFrameSize uint32
	writeTimeout time.Duration
	readBuffer   int
	onError      func(error)
	logger       *slog.Logger
}

// Option configures a stream server or client
type Option func(*options)

// WithMaxFrameSize sets the largest accepted frame body.
// A peer announcing a bigger frame is disconnected. Set to 0 to disable.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithWriteTimeout bounds each frame write. Set to 0 to disable.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithReadBuffer sets the size of the per-connection read buffer.
func WithReadBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBuffer = n
		}
	}
}

// WithErrorHandler sets the callback for connection errors.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		maxFrameSize: frame.DefaultMaxSize,
		writeTimeout: DefaultWriteTimeout,
		readBuffer:   DefaultReadBuffer,
		onError:      func(error) {},
		logger:       transport.Logger("transport>stream"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
