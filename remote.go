package eventbus

import (
	"context"
	"errors"

	"github.com/rbaliyan/eventbus/transport"
	"github.com/rbaliyan/eventbus/transport/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DropReason tells why an envelope was not delivered
type DropReason string

const (
	// DropMalformed: inbound bytes did not decode to an envelope
	DropMalformed DropReason = "malformed"
	// DropQueueFull: the inbound queue was full
	DropQueueFull DropReason = "queue_full"
	// DropClosed: the envelope arrived after Close
	DropClosed DropReason = "closed"
	// DropEncode: an outbound envelope could not be encoded
	DropEncode DropReason = "encode"
	// DropBroadcast: the bridge refused an outbound envelope
	DropBroadcast DropReason = "broadcast"
)

// Drop describes an envelope that was not delivered.
type Drop struct {
	Reason DropReason
	Scope  string // empty when the envelope could not be decoded
	Event  string
	Size   int // encoded size in bytes, when known
	Err    error
}

// remote is the installed bridge and its inbound worker
type remote struct {
	bridge  transport.Bridge
	inbound chan []byte
	done    chan struct{}
	stopped chan struct{}
}

// stop ends the inbound worker and closes the bridge. The bridge is closed
// even when ctx expires before the worker has finished.
func (r *remote) stop(ctx context.Context) error {
	close(r.done)
	select {
	case <-r.stopped:
		return r.bridge.Close(ctx)
	case <-ctx.Done():
		return errors.Join(ctx.Err(), r.bridge.Close(context.WithoutCancel(ctx)))
	}
}

// EnableRemote connects the bus to other processes through bridge.
// Only the first call installs a bridge; later calls are no-ops.
// Envelopes received from the bridge are republished into the scope they
// name, except those this bus sent itself.
func (b *Bus) EnableRemote(ctx context.Context, bridge transport.Bridge) error {
	if bridge == nil {
		return ErrBridgeRequired
	}

	b.remoteMu.Lock()
	defer b.remoteMu.Unlock()

	if !b.Running() {
		return ErrBusClosed
	}
	if b.remote.Load() != nil {
		b.logger.Debug("remote already enabled")
		return nil
	}

	r := &remote{
		bridge:  bridge,
		inbound: make(chan []byte, b.inboundBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.remote.Store(r)
	go b.inboundLoop(r)
	bridge.OnReceive(b.receive)

	b.logger.Info("remote enabled", "bus_id", b.id, "codec", b.codec.Name())
	return nil
}

// RemoteEnabled reports whether a bridge is installed
func (b *Bus) RemoteEnabled() bool {
	return b.remote.Load() != nil
}

// PublishRemote publishes to the named scope and broadcasts the event to
// remote buses. It does not wait for remote delivery and never fails:
// encode and broadcast errors are logged, counted and passed to the drop
// handler. Without a bridge it only publishes locally.
func (b *Bus) PublishRemote(ctx context.Context, scope, event string, args ...any) {
	s := b.Scope(scope)
	ctx, span := b.startSpan(ctx, event+".publish.remote", trace.SpanKindProducer, s.name, event, "")
	defer span.End()

	s.Publish(ctx, event, args...)

	r := b.remote.Load()
	if r == nil || !b.Running() {
		return
	}

	env := message.NewEnvelope(b.id, s.name, event, args)
	if b.tracer != nil {
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		if len(carrier) > 0 {
			env.Metadata = carrier
		}
	}

	data, err := message.Encode(b.codec, env)
	if err != nil {
		b.drop(ctx, Drop{Reason: DropEncode, Scope: s.name, Event: event, Err: err})
		return
	}
	if err := r.bridge.Broadcast(ctx, data); err != nil {
		b.drop(ctx, Drop{Reason: DropBroadcast, Scope: s.name, Event: event, Size: len(data), Err: err})
		return
	}
	b.metrics.recordSent(ctx, s.name, event)
}

// receive is the bridge callback. It only queues.
func (b *Bus) receive(data []byte) {
	r := b.remote.Load()
	if r == nil {
		return
	}
	select {
	case <-r.done:
		b.drop(context.Background(), Drop{Reason: DropClosed, Size: len(data)})
		return
	default:
	}
	select {
	case r.inbound <- data:
	default:
		b.drop(context.Background(), Drop{Reason: DropQueueFull, Size: len(data)})
	}
}

func (b *Bus) inboundLoop(r *remote) {
	defer close(r.stopped)
	defer b.drain(r)
	for {
		// stop takes priority over queued envelopes
		select {
		case <-r.done:
			return
		default:
		}
		select {
		case <-r.done:
			return
		case data := <-r.inbound:
			b.republish(data)
		}
	}
}

// drain reports envelopes still queued after stop as closed drops.
func (b *Bus) drain(r *remote) {
	for {
		select {
		case data := <-r.inbound:
			b.drop(context.Background(), Drop{Reason: DropClosed, Size: len(data)})
		default:
			return
		}
	}
}

// republish decodes one inbound envelope and publishes it locally.
func (b *Bus) republish(data []byte) {
	ctx := context.Background()
	env, err := message.DecodeEnvelope(b.codec, data)
	if err != nil {
		b.drop(ctx, Drop{Reason: DropMalformed, Size: len(data), Err: err})
		return
	}
	if env.Source == b.id {
		return
	}

	if len(env.Metadata) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(env.Metadata))
	}
	s := b.Scope(env.Scope)
	ctx, span := b.startSpan(ctx, env.Event+".receive", trace.SpanKindConsumer, s.name, env.Event, env.Source)
	defer span.End()

	b.metrics.recordReceived(ctx, s.name, env.Event)
	s.publish(ctx, deliveryContextData{
		scope:      s.name,
		event:      env.Event,
		source:     env.Source,
		envelopeID: env.ID,
		metadata:   env.Metadata,
	}, Args(env.Values()), false)
}

func (b *Bus) drop(ctx context.Context, d Drop) {
	b.metrics.recordDropped(ctx, d.Reason)
	if b.dropLog.Allow() {
		b.logger.Warn("envelope dropped",
			"reason", d.Reason,
			"scope", d.Scope,
			"event", d.Event,
			"size", d.Size,
			"error", d.Err,
		)
	}
	b.onDrop(d)
}
