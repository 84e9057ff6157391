// Package redis provides a remote bridge over Redis Pub/Sub.
//
// All buses publish to and subscribe on one channel. Redis Pub/Sub does not
// persist messages, so delivery is at-most-once.
//
// The bridge does not own the client; closing it only ends the subscription.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus/transport"
	"github.com/redis/go-redis/v9"
)

// Client is the subset of the go-redis client used by the bridge.
// *redis.Client, *redis.ClusterClient and *redis.Ring satisfy it.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Ping(ctx context.Context) *redis.StatusCmd
}

// ErrClientRequired is returned when no Redis client is provided
var ErrClientRequired = errors.New("redis client is required")

// Bridge implements transport.Bridge on a Redis channel.
type Bridge struct {
	status  int32
	client  Client
	pubsub  *redis.PubSub
	channel string
	recv    transport.Receiver
	logger  *slog.Logger
	onError func(error)
	done    chan struct{}
}

// New subscribes to the configured channel and returns the bridge.
func New(ctx context.Context, client Client, opts ...Option) (*Bridge, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	o := newOptions(opts...)

	ps := client.Subscribe(ctx, o.channel)
	subCtx, cancel := context.WithTimeout(ctx, o.subscribeTimeout)
	defer cancel()
	if _, err := ps.Receive(subCtx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", o.channel, err)
	}

	b := newBridge(client, o)
	b.pubsub = ps
	go b.consume(ps.Channel())

	b.logger.Debug("redis bridge ready")
	return b, nil
}

func newBridge(client Client, o *options) *Bridge {
	return &Bridge{
		status:  1,
		client:  client,
		channel: o.channel,
		logger:  o.logger.With("channel", o.channel),
		onError: o.onError,
		done:    make(chan struct{}),
	}
}

// consume delivers messages until ch is closed.
func (b *Bridge) consume(ch <-chan *redis.Message) {
	defer close(b.done)
	for msg := range ch {
		if atomic.LoadInt32(&b.status) != 1 {
			continue
		}
		if err := b.recv.Deliver([]byte(msg.Payload)); err != nil {
			b.logger.Debug("frame without receiver")
		}
	}
}

// Channel returns the pub/sub channel the bridge uses.
func (b *Bridge) Channel() string {
	return b.channel
}

// Broadcast publishes data on the channel.
func (b *Bridge) Broadcast(ctx context.Context, data []byte) error {
	if atomic.LoadInt32(&b.status) != 1 {
		return transport.ErrTransportClosed
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.onError(err)
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// OnReceive sets the inbound callback.
func (b *Bridge) OnReceive(fn transport.ReceiveFunc) {
	b.recv.Set(fn)
}

// Close ends the subscription and waits for the consumer to stop.
func (b *Bridge) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.status, 1, 0) {
		return nil
	}
	var err error
	if b.pubsub != nil {
		err = b.pubsub.Close()
	}
	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.logger.Debug("redis bridge closed")
	return err
}

// Health performs a health check on the bridge
func (b *Bridge) Health(ctx context.Context) *transport.HealthCheckResult {
	start := time.Now()
	result := &transport.HealthCheckResult{
		CheckedAt: start,
		Details: map[string]any{
			"type":    "redis",
			"channel": b.channel,
		},
	}

	if atomic.LoadInt32(&b.status) != 1 {
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "bridge is closed"
		result.Latency = time.Since(start)
		return result
	}

	if err := b.client.Ping(ctx).Err(); err != nil {
		result.Status = transport.HealthStatusUnhealthy
		result.Message = fmt.Sprintf("ping failed: %v", err)
	} else {
		result.Status = transport.HealthStatusHealthy
		result.Message = "connected"
	}
	result.Latency = time.Since(start)
	return result
}

// Compile-time interface checks
var _ transport.Bridge = (*Bridge)(nil)
var _ transport.HealthChecker = (*Bridge)(nil)
var _ Client = (*redis.Client)(nil)
