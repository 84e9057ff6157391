// Package kafka provides a remote bridge over a Kafka topic.
//
// Every bridge produces to one topic and consumes it through a consumer group
// of its own, so each bus receives every frame (fan-out). Use
// Consumer.Offsets.Initial = sarama.OffsetNewest in the client config so that
// a new bridge only sees frames published after it joined.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rbaliyan/eventbus/transport"
)

// Errors
var (
	ErrClientRequired = errors.New("kafka client is required")
	ErrProducerFailed = errors.New("failed to create kafka producer")
	ErrGroupFailed    = errors.New("failed to create kafka consumer group")
)

// Bridge implements transport.Bridge on a Kafka topic.
type Bridge struct {
	status   int32
	topic    string
	groupID  string
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	recv     transport.Receiver
	logger   *slog.Logger
	onError  func(error)
	opts     *options

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the producer and consumer group from client and starts consuming.
//
// The client config must have Producer.Return.Successes enabled, as required
// by sarama's SyncProducer.
func New(client sarama.Client, opts ...Option) (*Bridge, error) {
	o := newOptions(opts...)
	groupID := o.groupPrefix + "-" + transport.NewID()

	if o.producer == nil || o.group == nil {
		if client == nil {
			return nil, ErrClientRequired
		}
	}
	if o.producer == nil {
		p, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return nil, errors.Join(ErrProducerFailed, err)
		}
		o.producer = p
	}
	if o.group == nil {
		g, err := sarama.NewConsumerGroupFromClient(groupID, client)
		if err != nil {
			o.producer.Close()
			return nil, errors.Join(ErrGroupFailed, err)
		}
		o.group = g
	}

	return start(groupID, o), nil
}

func start(groupID string, o *options) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		status:   1,
		topic:    o.topic,
		groupID:  groupID,
		producer: o.producer,
		group:    o.group,
		logger:   o.logger.With("topic", o.topic, "group", groupID),
		onError:  o.onError,
		opts:     o,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go b.consumeLoop(ctx)

	b.logger.Debug("kafka bridge ready")
	return b
}

func (b *Bridge) consumeLoop(ctx context.Context) {
	defer close(b.done)
	handler := &consumerHandler{bridge: b}
	backoff := b.opts.minBackoff

	for ctx.Err() == nil {
		if err := b.group.Consume(ctx, []string{b.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			wait := transport.Jitter(backoff, 0.3)
			b.logger.Error("consumer error, retrying with backoff", "error", err, "backoff", wait)
			b.onError(err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > b.opts.maxBackoff {
				backoff = b.opts.maxBackoff
			}
			continue
		}
		backoff = b.opts.minBackoff
	}
}

// consumerHandler implements sarama.ConsumerGroupHandler
type consumerHandler struct {
	bridge *Bridge
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if atomic.LoadInt32(&h.bridge.status) == 1 {
				if err := h.bridge.recv.Deliver(msg.Value); err != nil {
					h.bridge.logger.Debug("frame without receiver",
						"partition", msg.Partition, "offset", msg.Offset)
				}
			}
			session.MarkMessage(msg, "")
		}
	}
}

// Topic returns the topic the bridge uses.
func (b *Bridge) Topic() string {
	return b.topic
}

// GroupID returns the bridge's consumer group ID.
func (b *Bridge) GroupID() string {
	return b.groupID
}

// Broadcast produces data to the topic.
func (b *Bridge) Broadcast(ctx context.Context, data []byte) error {
	if atomic.LoadInt32(&b.status) != 1 {
		return transport.ErrTransportClosed
	}
	_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		b.onError(err)
		return fmt.Errorf("produce %s: %w", b.topic, err)
	}
	return nil
}

// OnReceive sets the inbound callback.
func (b *Bridge) OnReceive(fn transport.ReceiveFunc) {
	b.recv.Set(fn)
}

// Close stops consuming and closes the producer and the consumer group.
func (b *Bridge) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.status, 1, 0) {
		return nil
	}
	b.cancel()

	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	err := errors.Join(b.group.Close(), b.producer.Close())
	b.logger.Debug("kafka bridge closed")
	return err
}

// Health performs a health check on the bridge
func (b *Bridge) Health(ctx context.Context) *transport.HealthCheckResult {
	start := time.Now()
	result := &transport.HealthCheckResult{
		CheckedAt: start,
		Details: map[string]any{
			"type":  "kafka",
			"topic": b.topic,
			"group": b.groupID,
		},
	}

	select {
	case <-b.done:
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "consumer stopped"
	default:
		result.Status = transport.HealthStatusHealthy
		result.Message = "consuming"
	}
	if atomic.LoadInt32(&b.status) != 1 {
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "bridge is closed"
	}
	result.Latency = time.Since(start)
	return result
}

// Compile-time interface checks
var _ transport.Bridge = (*Bridge)(nil)
var _ transport.HealthChecker = (*Bridge)(nil)
var _ sarama.ConsumerGroupHandler = (*consumerHandler)(nil)
