package kafka

import (
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rbaliyan/eventbus/transport"
)

// Default configuration values
var (
	// DefaultTopic is the Kafka topic used when none is configured
	DefaultTopic = "eventbus"

	// DefaultGroupPrefix prefixes the per-bridge consumer group ID
	DefaultGroupPrefix = "eventbus"
)

// options holds configuration for the Kafka bridge (unexported)
type options struct {
	topic       string
	groupPrefix string
	producer    sarama.SyncProducer
	group       sarama.ConsumerGroup
	minBackoff  time.Duration
	maxBackoff  time.Duration
	logger      *slog.Logger
	onError     func(error)
}

// Option configures the Kafka bridge
type Option func(*options)

// WithTopic sets the topic shared by the buses.
func WithTopic(topic string) Option {
	return func(o *options) {
		if topic != "" {
			o.topic = topic
		}
	}
}

// WithGroupPrefix sets the prefix of the bridge's consumer group.
// Each bridge still gets its own group so every bus sees every frame.
func WithGroupPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.groupPrefix = prefix
		}
	}
}

// WithProducer uses p instead of creating a producer from the client.
// The bridge takes ownership of p.
func WithProducer(p sarama.SyncProducer) Option {
	return func(o *options) {
		o.producer = p
	}
}

// WithConsumerGroup uses g instead of creating a group from the client.
// The bridge takes ownership of g.
func WithConsumerGroup(g sarama.ConsumerGroup) Option {
	return func(o *options) {
		o.group = g
	}
}

// WithBackoff sets the retry bounds used when the consumer fails.
func WithBackoff(min, max time.Duration) Option {
	return func(o *options) {
		if min > 0 && max >= min {
			o.minBackoff = min
			o.maxBackoff = max
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
		topic:       DefaultTopic,
		groupPrefix: DefaultGroupPrefix,
		minBackoff:  100 * time.Millisecond,
		maxBackoff:  30 * time.Second,
		logger:      transport.Logger("transport>kafka"),
		onError:     func(error) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
