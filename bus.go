package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus/transport"
	"github.com/rbaliyan/eventbus/transport/codec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// NewID generates a new unique ID
func NewID() string {
	return transport.NewID()
}

const (
	busRunning = 1
	busStopped = 0
)

// DefaultBusName is the name used when none is configured
var DefaultBusName = "eventbus"

// DefaultScope is the reserved scope used by the Bus shortcuts.
const DefaultScope = "default"

// DefaultInboundBuffer is the number of remote envelopes queued for republishing.
var DefaultInboundBuffer = 1024

// span attribute keys
const (
	spanKeyScope  = "event.scope"
	spanKeyEvent  = "event.name"
	spanKeySource = "event.source"
	spanKeyBus    = "event.bus"
)

// StatusCode represents the health state of the bus
type StatusCode string

const (
	// StatusHealthy indicates the bus is functioning normally
	StatusHealthy StatusCode = "healthy"
	// StatusDegraded indicates the bus is functioning but with issues
	StatusDegraded StatusCode = "degraded"
	// StatusUnhealthy indicates the bus is not functioning
	StatusUnhealthy StatusCode = "unhealthy"
)

// Status contains detailed status information for the bus
type Status struct {
	Code       StatusCode         `json:"status"`
	Message    string             `json:"message,omitempty"`
	Latency    time.Duration      `json:"latency,omitempty"`
	Details    map[string]any     `json:"details,omitempty"`
	Components map[string]*Status `json:"components,omitempty"`
	CheckedAt  time.Time          `json:"checked_at"`
}

// IsHealthy returns true if the status code is healthy
func (s *Status) IsHealthy() bool {
	return s.Code == StatusHealthy
}

// busOptions holds configuration for bus (unexported)
type busOptions struct {
	name            string
	logger          *slog.Logger
	codec           codec.Codec
	tracingEnabled  bool
	recoveryEnabled bool
	metricsEnabled  bool
	inboundBuffer   int
	onError         func(error)
	onDrop          func(Drop)
}

// BusOption option function for bus configuration
type BusOption func(*busOptions)

// WithBusName sets the bus name used in logs, metrics and traces
func WithBusName(name string) BusOption {
	return func(o *busOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithBusLogger sets a custom logger for the bus
func WithBusLogger(l *slog.Logger) BusOption {
	return func(o *busOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBusCodec sets the codec used for remote envelopes.
// Every bus sharing a bridge must use the same codec.
func WithBusCodec(c codec.Codec) BusOption {
	return func(o *busOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithBusTracing enables/disables tracing for all events on this bus
func WithBusTracing(enabled bool) BusOption {
	return func(o *busOptions) {
		o.tracingEnabled = enabled
	}
}

// WithBusRecovery enables/disables panic recovery for all handlers on this bus
func WithBusRecovery(enabled bool) BusOption {
	return func(o *busOptions) {
		o.recoveryEnabled = enabled
	}
}

// WithBusMetrics enables/disables metrics for all events on this bus
func WithBusMetrics(enabled bool) BusOption {
	return func(o *busOptions) {
		o.metricsEnabled = enabled
	}
}

// WithInboundBuffer sets how many remote envelopes may wait for republishing.
// Envelopes arriving while the buffer is full are dropped.
func WithInboundBuffer(n int) BusOption {
	return func(o *busOptions) {
		if n > 0 {
			o.inboundBuffer = n
		}
	}
}

// WithErrorHandler sets the callback for handler failures.
// It receives *HandlerError values, possibly wrapping a *PanicError.
func WithErrorHandler(fn func(error)) BusOption {
	return func(o *busOptions) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithDropHandler sets the callback for envelopes that were not delivered:
// malformed or unparsable input, a full inbound queue, or an outbound
// encode/broadcast failure.
func WithDropHandler(fn func(Drop)) BusOption {
	return func(o *busOptions) {
		if fn != nil {
			o.onDrop = fn
		}
	}
}

// newBusOptions creates options with defaults and applies provided options
func newBusOptions(opts ...BusOption) *busOptions {
	o := &busOptions{
		name:            DefaultBusName,
		logger:          slog.Default(),
		codec:           codec.Default(),
		tracingEnabled:  true,
		recoveryEnabled: true,
		metricsEnabled:  true,
		inboundBuffer:   DefaultInboundBuffer,
		onError:         func(error) {},
		onDrop:          func(Drop) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bus maps scope names to scopes and connects them to other processes
// through an optional remote bridge.
//
// A Bus is created explicitly and passed to the components that need it.
// Scopes are created on first use and live as long as the bus.
type Bus struct {
	status          int32
	id              string
	name            string
	logger          *slog.Logger
	codec           codec.Codec
	tracer          trace.Tracer
	metrics         *busMetrics
	tracingEnabled  bool
	recoveryEnabled bool
	inboundBuffer   int
	onError         func(error)
	onDrop          func(Drop)
	dropLog         *rate.Limiter

	scopes sync.Map // map[string]*Scope

	remoteMu sync.Mutex
	remote   atomic.Pointer[remote]
}

// New creates a bus.
func New(opts ...BusOption) *Bus {
	o := newBusOptions(opts...)

	b := &Bus{
		status:          busRunning,
		id:              NewID(),
		name:            o.name,
		logger:          o.logger.With("component", "bus>"+o.name),
		codec:           o.codec,
		tracingEnabled:  o.tracingEnabled,
		recoveryEnabled: o.recoveryEnabled,
		inboundBuffer:   o.inboundBuffer,
		onError:         o.onError,
		onDrop:          o.onDrop,
		dropLog:         rate.NewLimiter(rate.Every(time.Second), 1),
	}
	if o.tracingEnabled {
		b.tracer = otel.Tracer(o.name)
	}
	if o.metricsEnabled {
		b.metrics = newBusMetrics(o.name)
	}
	return b
}

// ID returns the bus ID. Remote envelopes carry it as their source.
func (b *Bus) ID() string {
	return b.id
}

// Name returns the bus name
func (b *Bus) Name() string {
	return b.name
}

// Running returns true if bus is running
func (b *Bus) Running() bool {
	return atomic.LoadInt32(&b.status) == busRunning
}

// Logger returns the bus logger
func (b *Bus) Logger() *slog.Logger {
	return b.logger
}

// Scope returns the scope with the given name, creating it on first use.
// The empty name is the default scope.
func (b *Bus) Scope(name string) *Scope {
	if name == "" {
		name = DefaultScope
	}
	if v, ok := b.scopes.Load(name); ok {
		return v.(*Scope)
	}
	v, _ := b.scopes.LoadOrStore(name, newScope(name, b))
	return v.(*Scope)
}

// Default returns the default scope
func (b *Bus) Default() *Scope {
	return b.Scope(DefaultScope)
}

// Scopes returns the sorted names of the scopes created so far
func (b *Bus) Scopes() []string {
	var names []string
	b.scopes.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Publish publishes to the default scope
func (b *Bus) Publish(ctx context.Context, event string, args ...any) {
	b.Default().Publish(ctx, event, args...)
}

// PublishAsync publishes to the default scope with concurrent handlers
func (b *Bus) PublishAsync(ctx context.Context, event string, args ...any) error {
	return b.Default().PublishAsync(ctx, event, args...)
}

// Subscribe subscribes to an event of the default scope
func (b *Bus) Subscribe(ctx context.Context, event string, handler Handler, opts ...SubscribeOption) *Token {
	return b.Default().Subscribe(ctx, event, handler, opts...)
}

// RemoveSubscription removes every subscription of event in the default scope
func (b *Bus) RemoveSubscription(event string) {
	b.Default().RemoveAll(event)
}

// RemoveScopeSubscriptions clears the subscriptions and sticky entries of a
// scope. The scope itself stays.
func (b *Bus) RemoveScopeSubscriptions(scope string) {
	if scope == "" {
		scope = DefaultScope
	}
	if v, ok := b.scopes.Load(scope); ok {
		v.(*Scope).RemoveEverything()
	}
}

// Close stops the inbound worker and closes the remote bridge. Queued
// envelopes are reported as DropClosed.
// Scopes keep working locally after Close.
func (b *Bus) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.status, busRunning, busStopped) {
		return nil
	}
	b.remoteMu.Lock()
	r := b.remote.Load()
	b.remoteMu.Unlock()
	if r == nil {
		return nil
	}
	err := r.stop(ctx)
	select {
	case <-r.stopped:
		// envelopes that raced into the queue after the worker exited
		b.drain(r)
	default:
	}
	return err
}

func (b *Bus) startSpan(ctx context.Context, name string, kind trace.SpanKind, scope, event, source string) (context.Context, trace.Span) {
	if b.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	attrs := []attribute.KeyValue{
		attribute.String(spanKeyBus, b.name),
		attribute.String(spanKeyScope, scope),
		attribute.String(spanKeyEvent, event),
	}
	if source != "" {
		attrs = append(attrs, attribute.String(spanKeySource, source))
	}
	return b.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(kind))
}

// Status returns detailed status information about the bus and its bridge.
// If the bridge implements transport.HealthChecker, its status is included.
func (b *Bus) Status(ctx context.Context) *Status {
	start := time.Now()
	result := &Status{
		CheckedAt:  start,
		Details:    map[string]any{"bus_name": b.name, "bus_id": b.id},
		Components: make(map[string]*Status),
	}
	defer func() { result.Latency = time.Since(start) }()

	if !b.Running() {
		result.Code = StatusUnhealthy
		result.Message = "bus is closed"
		return result
	}
	result.Details["scopes"] = len(b.Scopes())

	r := b.remote.Load()
	if r == nil {
		result.Code = StatusHealthy
		result.Message = "bus is healthy (local only)"
		return result
	}
	result.Details["inbound_queued"] = len(r.inbound)

	hc, ok := r.bridge.(transport.HealthChecker)
	if !ok {
		result.Code = StatusHealthy
		result.Message = "bus is healthy (bridge health not available)"
		return result
	}

	bridgeHealth := hc.Health(ctx)
	result.Components["bridge"] = convertBridgeStatus(bridgeHealth)
	switch bridgeHealth.Status {
	case transport.HealthStatusUnhealthy:
		result.Code = StatusUnhealthy
		result.Message = "bridge is unhealthy"
	case transport.HealthStatusDegraded:
		result.Code = StatusDegraded
		result.Message = "bridge is degraded"
	default:
		result.Code = StatusHealthy
		result.Message = "bus is healthy"
	}
	return result
}

// Health performs a health check suitable for health probes.
// Returns nil if the bus is healthy, or an error describing the issue.
func (b *Bus) Health(ctx context.Context) error {
	status := b.Status(ctx)
	if status.Code == StatusUnhealthy {
		return errors.New(status.Message)
	}
	return nil
}

// convertBridgeStatus converts transport.HealthCheckResult to bus Status
func convertBridgeStatus(th *transport.HealthCheckResult) *Status {
	if th == nil {
		return nil
	}

	result := &Status{
		Code:      StatusCode(th.Status),
		Message:   th.Message,
		Latency:   th.Latency,
		Details:   th.Details,
		CheckedAt: th.CheckedAt,
	}
	if len(th.Components) > 0 {
		result.Components = make(map[string]*Status, len(th.Components))
		for k, v := range th.Components {
			result.Components[k] = convertBridgeStatus(v)
		}
	}
	return result
}
