package nats

import (
	"log/slog"

	"github.com/rbaliyan/eventbus/transport"
)

// DefaultSubject is the NATS subject used when none is configured
var DefaultSubject = "eventbus"

// options holds configuration for the NATS bridge (unexported)
type options struct {
	subject string
	queue   string
	logger  *slog.Logger
	onError func(error)
}

// Option configures the NATS bridge
type Option func(*options)

// WithSubject sets the subject every bus of the group publishes on.
func WithSubject(subject string) Option {
	return func(o *options) {
		if subject != "" {
			o.subject = subject
		}
	}
}

// WithQueue joins a queue group so that only one bridge of the group receives
// each frame. Leave empty for fan-out, which is what buses normally want.
func WithQueue(queue string) Option {
	return func(o *options) {
		o.queue = queue
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
		subject: DefaultSubject,
		logger:  transport.Logger("transport>nats"),
		onError: func(error) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
