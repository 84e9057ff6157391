package channel

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus/transport"
)

// Default configuration values
var (
	// DefaultBufferSize is the per-bridge inbound buffer size
	DefaultBufferSize uint = 100
)

// options holds configuration for the hub (unexported)
type options struct {
	bufferSize uint
	timeout    time.Duration
	onError    func(error)
	logger     *slog.Logger
}

// Option configures the channel hub
type Option func(*options)

// WithBufferSize sets the inbound buffer size of each bridge
func WithBufferSize(size uint) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// WithTimeout sets how long a broadcast waits for a full bridge buffer.
// Set to 0 to drop immediately when a buffer is full.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithErrorHandler sets the error handler callback.
// Called when the hub drops a frame for a bridge.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithLogger sets the logger for the hub
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// newOptions creates options with defaults and applies provided options
func newOptions(opts ...Option) *options {
	o := &options{
		bufferSize: DefaultBufferSize,
		onError:    func(error) {}, // no-op default
		logger:     transport.Logger("transport>channel"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
