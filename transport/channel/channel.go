// Package channel provides an in-process remote bridge built on Go channels.
//
// A Hub connects any number of bridges; a frame broadcast by one bridge is
// delivered to every bridge of the hub, including the sender. It lets several
// buses in one process (or one test) talk as if they were separate processes.
//
// Channel bridges do NOT provide delivery guarantees:
//
//   - Frames are lost when a bridge's buffer is full
//   - No persistence or redelivery mechanism
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrBufferFull is reported when a bridge cannot accept a frame in time.
var ErrBufferFull = errors.New("bridge buffer full")

// Hub fans frames out to its bridges
type Hub struct {
	bridges    sync.Map // map[string]*Bridge
	bufferSize uint
	timeout    time.Duration
	logger     *slog.Logger
	onError    func(error)

	droppedCounter metric.Int64Counter
}

// Bridge is one endpoint of a Hub. It implements transport.Bridge.
type Bridge struct {
	id       string
	hub      *Hub
	ch       chan []byte
	recv     transport.Receiver
	closed   int32
	closedCh chan struct{}
	done     chan struct{}
}

// NewHub creates a new in-process hub.
func NewHub(opts ...Option) *Hub {
	o := newOptions(opts...)

	meter := otel.Meter("eventbus.transport.channel")
	droppedCounter, _ := meter.Int64Counter("eventbus.transport.channel.dropped",
		metric.WithDescription("Number of frames dropped by the channel hub"),
		metric.WithUnit("{frame}"),
	)

	return &Hub{
		bufferSize:     o.bufferSize,
		timeout:        o.timeout,
		logger:         o.logger,
		onError:        o.onError,
		droppedCounter: droppedCounter,
	}
}

// Bridge creates a new endpoint attached to the hub.
func (h *Hub) Bridge() *Bridge {
	b := &Bridge{
		id:       transport.NewID(),
		hub:      h,
		ch:       make(chan []byte, h.bufferSize),
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	h.bridges.Store(b.id, b)
	go b.run()

	h.logger.Debug("added bridge", "bridge", b.id)
	return b
}

// Bridges returns the number of attached bridges.
func (h *Hub) Bridges() int {
	n := 0
	h.bridges.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (h *Hub) broadcast(ctx context.Context, data []byte) {
	h.bridges.Range(func(_, value any) bool {
		b := value.(*Bridge)
		if err := b.enqueue(ctx, data); err != nil {
			if errors.Is(err, ErrBufferFull) && h.droppedCounter != nil {
				h.droppedCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("bridge", b.id),
					attribute.String("reason", "buffer_full"),
				))
			}
			h.logger.Debug("dropped frame", "bridge", b.id, "error", err)
			h.onError(err)
		}
		return true
	})
}

// ID returns the bridge ID.
func (b *Bridge) ID() string {
	return b.id
}

func (b *Bridge) isOpen() bool {
	return atomic.LoadInt32(&b.closed) == 0
}

// Broadcast sends data to every bridge of the hub.
func (b *Bridge) Broadcast(ctx context.Context, data []byte) error {
	if !b.isOpen() {
		return transport.ErrTransportClosed
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	b.hub.broadcast(ctx, frame)
	return nil
}

// OnReceive sets the inbound callback.
func (b *Bridge) OnReceive(fn transport.ReceiveFunc) {
	b.recv.Set(fn)
}

func (b *Bridge) enqueue(ctx context.Context, data []byte) error {
	if !b.isOpen() {
		return transport.ErrTransportClosed
	}
	if b.hub.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, b.hub.timeout)
		defer cancel()
		select {
		case <-ctx.Done():
			return ErrBufferFull
		case <-b.closedCh:
			return transport.ErrTransportClosed
		case b.ch <- data:
			return nil
		}
	}

	select {
	case <-b.closedCh:
		return transport.ErrTransportClosed
	case b.ch <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.closedCh:
			return
		case data := <-b.ch:
			if err := b.recv.Deliver(data); err != nil {
				b.hub.logger.Debug("frame without receiver", "bridge", b.id)
			}
		}
	}
}

// Close detaches the bridge from the hub and stops delivery.
func (b *Bridge) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil // Already closed
	}
	b.hub.bridges.Delete(b.id)
	close(b.closedCh)

	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.hub.logger.Debug("bridge closed", "bridge", b.id)
	return nil
}

// Health performs a health check on the bridge
func (b *Bridge) Health(ctx context.Context) *transport.HealthCheckResult {
	start := time.Now()

	result := &transport.HealthCheckResult{
		CheckedAt: start,
		Details:   make(map[string]any),
	}

	if !b.isOpen() {
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "bridge is closed"
		result.Latency = time.Since(start)
		return result
	}

	result.Status = transport.HealthStatusHealthy
	result.Message = "channel bridge is healthy"
	result.Latency = time.Since(start)
	result.Details["type"] = "channel"
	result.Details["peers"] = b.hub.Bridges()
	result.Details["buffered"] = len(b.ch)
	result.Details["buffer_size"] = b.hub.bufferSize
	return result
}

// Compile-time interface checks
var _ transport.Bridge = (*Bridge)(nil)
var _ transport.HealthChecker = (*Bridge)(nil)
