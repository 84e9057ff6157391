package eventbus

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// busMetrics holds the bus counters. A nil *busMetrics records nothing.
type busMetrics struct {
	published      metric.Int64Counter
	handlerErrors  metric.Int64Counter
	remoteSent     metric.Int64Counter
	remoteReceived metric.Int64Counter
	remoteDropped  metric.Int64Counter
}

func newBusMetrics(name string) *busMetrics {
	meter := otel.Meter(name)
	m := &busMetrics{}
	m.published, _ = meter.Int64Counter("eventbus.published",
		metric.WithDescription("Total number of events published"),
		metric.WithUnit("{event}"))
	m.handlerErrors, _ = meter.Int64Counter("eventbus.handler.errors",
		metric.WithDescription("Total number of failed handler invocations"),
		metric.WithUnit("{error}"))
	m.remoteSent, _ = meter.Int64Counter("eventbus.remote.sent",
		metric.WithDescription("Total number of envelopes handed to the bridge"),
		metric.WithUnit("{envelope}"))
	m.remoteReceived, _ = meter.Int64Counter("eventbus.remote.received",
		metric.WithDescription("Total number of remote envelopes republished locally"),
		metric.WithUnit("{envelope}"))
	m.remoteDropped, _ = meter.Int64Counter("eventbus.remote.dropped",
		metric.WithDescription("Total number of envelopes dropped"),
		metric.WithUnit("{envelope}"))
	return m
}

func eventAttrs(scope, event string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("event", event),
	)
}

func (m *busMetrics) recordPublished(ctx context.Context, scope, event string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.Add(ctx, 1, eventAttrs(scope, event))
}

func (m *busMetrics) recordHandlerError(ctx context.Context, scope, event string) {
	if m == nil || m.handlerErrors == nil {
		return
	}
	m.handlerErrors.Add(ctx, 1, eventAttrs(scope, event))
}

func (m *busMetrics) recordSent(ctx context.Context, scope, event string) {
	if m == nil || m.remoteSent == nil {
		return
	}
	m.remoteSent.Add(ctx, 1, eventAttrs(scope, event))
}

func (m *busMetrics) recordReceived(ctx context.Context, scope, event string) {
	if m == nil || m.remoteReceived == nil {
		return
	}
	m.remoteReceived.Add(ctx, 1, eventAttrs(scope, event))
}

func (m *busMetrics) recordDropped(ctx context.Context, reason DropReason) {
	if m == nil || m.remoteDropped == nil {
		return
	}
	m.remoteDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}
