// Package transport provides the remote bridge contract used by the bus to
// carry envelopes between processes, plus shared helpers for implementations.
//
// Bridge implementations (channel, stream, nats, redis, kafka) import this
// package rather than the root package to avoid import cycles. A bridge moves
// opaque bytes: encoding, decoding and routing of envelopes are the bus's job.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Transport errors
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrNoReceiver      = errors.New("no receive callback registered")
)

// ReceiveFunc is invoked once per inbound frame with its payload.
// It runs on a transport-owned goroutine and must not block.
type ReceiveFunc func(data []byte)

// Bridge carries serialized envelopes to and from other processes.
type Bridge interface {
	// Broadcast sends data to every peer. It does not wait for delivery.
	Broadcast(ctx context.Context, data []byte) error

	// OnReceive sets the callback for inbound frames, replacing any previous one.
	OnReceive(fn ReceiveFunc)

	// Close releases the bridge's connections and stops delivery.
	Close(ctx context.Context) error
}

// HealthStatus represents the health state of a component
type HealthStatus string

const (
	// HealthStatusHealthy indicates the component is functioning normally
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates the component is functioning but with issues
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates the component is not functioning
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult contains detailed health information
type HealthCheckResult struct {
	Status     HealthStatus                  `json:"status"`
	Message    string                        `json:"message,omitempty"`
	Latency    time.Duration                 `json:"latency,omitempty"`
	Details    map[string]any                `json:"details,omitempty"`
	Components map[string]*HealthCheckResult `json:"components,omitempty"`
	CheckedAt  time.Time                     `json:"checked_at"`
}

// IsHealthy returns true if the status is healthy
func (h *HealthCheckResult) IsHealthy() bool {
	return h.Status == HealthStatusHealthy
}

// HealthChecker is an optional interface that bridges can implement
// to provide health check capabilities for monitoring and readiness probes.
type HealthChecker interface {
	// Health performs a health check and returns the result.
	// The context can be used to set a timeout for the health check.
	Health(ctx context.Context) *HealthCheckResult
}

// Receiver stores a ReceiveFunc for concurrent use by a bridge's read loops.
// The zero value is ready to use.
type Receiver struct {
	mu sync.RWMutex
	fn ReceiveFunc
}

// Set replaces the callback.
func (r *Receiver) Set(fn ReceiveFunc) {
	r.mu.Lock()
	r.fn = fn
	r.mu.Unlock()
}

// Deliver hands data to the callback. It returns ErrNoReceiver when none is set.
func (r *Receiver) Deliver(data []byte) error {
	r.mu.RLock()
	fn := r.fn
	r.mu.RUnlock()
	if fn == nil {
		return ErrNoReceiver
	}
	fn(data)
	return nil
}

// ID generation
var counter uint64

// NewID generates a new unique ID
func NewID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return strconv.FormatUint(atomic.AddUint64(&counter, 1), 10)
}

// Logger returns a logger with the given component name
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// Jitter spreads d by up to factor in both directions so that reconnecting
// peers do not retry in lockstep. A factor outside (0, 1] returns d unchanged.
func Jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || factor > 1 {
		return d
	}
	jitter := (rand.Float64()*2 - 1) * factor
	return time.Duration(float64(d) * (1 + jitter))
}
