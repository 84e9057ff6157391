package redis

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventbus/transport"
)

// Default configuration values
var (
	// DefaultChannel is the pub/sub channel used when none is configured
	DefaultChannel = "eventbus"

	// DefaultSubscribeTimeout bounds the wait for the subscription confirmation
	DefaultSubscribeTimeout = 5 * time.Second
)

// options holds configuration for the Redis bridge (unexported)
type options struct {
	channel          string
	subscribeTimeout time.Duration
	logger           *slog.Logger
	onError          func(error)
}

// Option configures the Redis bridge
type Option func(*options)

// WithChannel sets the pub/sub channel shared by the buses.
func WithChannel(channel string) Option {
	return func(o *options) {
		if channel != "" {
			o.channel = channel
		}
	}
}

// WithSubscribeTimeout bounds the wait for the server to confirm the subscription.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.subscribeTimeout = d
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

// WithErrorHandler sets the error handler callback
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		channel:          DefaultChannel,
		subscribeTimeout: DefaultSubscribeTimeout,
		logger:           transport.Logger("transport>redis"),
		onError:          func(error) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
