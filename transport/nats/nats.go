// Package nats provides a remote bridge over NATS Core pub/sub.
//
// Every bridge subscribes to one subject and publishes its frames there, so
// all buses on the subject see each other's envelopes. NATS Core delivery is
// at-most-once: frames published while a bridge is disconnected are lost.
//
// The bridge does not own the connection; closing it only drops the
// subscription.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rbaliyan/eventbus/transport"
)

// Errors
var (
	ErrConnRequired = errors.New("nats connection is required")
)

// Bridge implements transport.Bridge on a NATS subject.
type Bridge struct {
	status  int32
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	recv    transport.Receiver
	logger  *slog.Logger
	onError func(error)
}

// New subscribes to the configured subject and returns the bridge.
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	bridge, err := natsbridge.New(nc, natsbridge.WithSubject("sensors"))
func New(conn *nats.Conn, opts ...Option) (*Bridge, error) {
	if conn == nil {
		return nil, ErrConnRequired
	}
	o := newOptions(opts...)

	b := &Bridge{
		status:  1,
		conn:    conn,
		subject: o.subject,
		logger:  o.logger.With("subject", o.subject),
		onError: o.onError,
	}

	var err error
	if o.queue != "" {
		b.sub, err = conn.QueueSubscribe(o.subject, o.queue, b.handle)
	} else {
		b.sub, err = conn.Subscribe(o.subject, b.handle)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", o.subject, err)
	}

	b.logger.Debug("nats bridge ready")
	return b, nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	if atomic.LoadInt32(&b.status) != 1 {
		return
	}
	if err := b.recv.Deliver(msg.Data); err != nil {
		b.logger.Debug("frame without receiver")
	}
}

// Subject returns the subject the bridge uses.
func (b *Bridge) Subject() string {
	return b.subject
}

// Broadcast publishes data on the subject.
func (b *Bridge) Broadcast(ctx context.Context, data []byte) error {
	if atomic.LoadInt32(&b.status) != 1 {
		return transport.ErrTransportClosed
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		b.onError(err)
		return fmt.Errorf("publish %s: %w", b.subject, err)
	}
	return nil
}

// OnReceive sets the inbound callback.
func (b *Bridge) OnReceive(fn transport.ReceiveFunc) {
	b.recv.Set(fn)
}

// Flush waits until the server has processed everything published so far.
func (b *Bridge) Flush(ctx context.Context) error {
	return b.conn.FlushWithContext(ctx)
}

// Close drops the subscription. The connection stays open.
func (b *Bridge) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.status, 1, 0) {
		return nil
	}
	if err := b.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	b.logger.Debug("nats bridge closed")
	return nil
}

// Health performs a health check on the bridge
func (b *Bridge) Health(ctx context.Context) *transport.HealthCheckResult {
	start := time.Now()
	result := &transport.HealthCheckResult{
		CheckedAt: start,
		Details: map[string]any{
			"type":    "nats",
			"subject": b.subject,
		},
	}

	status := b.conn.Status()
	result.Details["connection"] = status.String()

	switch {
	case atomic.LoadInt32(&b.status) != 1:
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "bridge is closed"
	case status == nats.CONNECTED:
		result.Status = transport.HealthStatusHealthy
		result.Message = "connected"
		result.Details["server"] = b.conn.ConnectedUrl()
	case status == nats.RECONNECTING:
		result.Status = transport.HealthStatusDegraded
		result.Message = "reconnecting"
	default:
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "not connected"
	}
	result.Latency = time.Since(start)
	return result
}

// Compile-time interface checks
var _ transport.Bridge = (*Bridge)(nil)
var _ transport.HealthChecker = (*Bridge)(nil)
