package command

import (
	"log/slog"

	"github.com/rbaliyan/eventbus/transport"
	"github.com/rbaliyan/eventbus/transport/codec"
)

// options holds router configuration (unexported)
type options struct {
	name     string
	guard    Guard
	codec    codec.Codec
	logger   *slog.Logger
	onDrop   func(data []byte, err error)
	recovery bool
}

// Option configures a Router
type Option func(*options)

// WithName sets the router's name. Messages with a non-empty target that
// differs from the name are ignored.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithGuard replaces the execution-context guard (default: DefaultGuard).
func WithGuard(g Guard) Option {
	return func(o *options) {
		if g != nil {
			o.guard = g
		}
	}
}

// WithCodec sets the codec used by Receive (default: JSON).
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDropHandler is called for input that Receive could not decode.
func WithDropHandler(fn func(data []byte, err error)) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

// WithRecovery enables or disables panic recovery in handlers (default: true).
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recovery = enabled
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		guard:    DefaultGuard,
		codec:    codec.Default(),
		onDrop:   func([]byte, error) {},
		recovery: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		component := "command"
		if o.name != "" {
			component += ">" + o.name
		}
		o.logger = transport.Logger(component)
	}
	if o.onDrop == nil {
		o.onDrop = func([]byte, error) {}
	}
	return o
}

// handleOptions holds per-command configuration
type handleOptions struct {
	allowRestricted bool
}

// HandleOption configures a single command registration
type HandleOption func(*handleOptions)

// AllowRestricted lets the command run inside the restricted context.
// Commands without it fail with a ContextError there.
func AllowRestricted() HandleOption {
	return func(o *handleOptions) {
		o.allowRestricted = true
	}
}
