package eventbus

import (
	"context"
)

const (
	deliveryContextKey contextKey = iota
)

// contextKey
type contextKey int

type deliveryContextData struct {
	scope      string
	event      string
	subID      string
	source     string
	envelopeID string
	metadata   map[string]string
}

func deliveryData(ctx context.Context) *deliveryContextData {
	d, _ := ctx.Value(deliveryContextKey).(*deliveryContextData)
	return d
}

// ContextScope returns the scope of the event being delivered
func ContextScope(ctx context.Context) string {
	if d := deliveryData(ctx); d != nil {
		return d.scope
	}
	return ""
}

// ContextEvent returns the name of the event being delivered
func ContextEvent(ctx context.Context) string {
	if d := deliveryData(ctx); d != nil {
		return d.event
	}
	return ""
}

// ContextSubscriptionID returns the ID of the subscription being invoked
func ContextSubscriptionID(ctx context.Context) string {
	if d := deliveryData(ctx); d != nil {
		return d.subID
	}
	return ""
}

// ContextSource returns the ID of the bus that published a remote event.
// It is empty for local publishes.
func ContextSource(ctx context.Context) string {
	if d := deliveryData(ctx); d != nil {
		return d.source
	}
	return ""
}

// ContextEnvelopeID returns the envelope ID of a remote event
func ContextEnvelopeID(ctx context.Context) string {
	if d := deliveryData(ctx); d != nil {
		return d.envelopeID
	}
	return ""
}

// ContextRemote reports whether the event being delivered came from another bus
func ContextRemote(ctx context.Context) bool {
	return ContextSource(ctx) != ""
}

// ContextMetadata returns the envelope metadata of a remote event
func ContextMetadata(ctx context.Context) map[string]string {
	if d := deliveryData(ctx); d != nil {
		return d.metadata
	}
	return nil
}

func contextWithDelivery(ctx context.Context, d deliveryContextData) context.Context {
	return context.WithValue(ctx, deliveryContextKey, &d)
}

// NewContext copies the delivery information of ctx into a fresh context,
// for work that must outlive the handler.
func NewContext(ctx context.Context) context.Context {
	if d := deliveryData(ctx); d != nil {
		return context.WithValue(context.Background(), deliveryContextKey, d)
	}
	return context.Background()
}
