package eventbus

import (
	"context"
	"sync"
	"time"
)

// TestBus creates a new bus configured for testing.
// Has recovery/tracing/metrics disabled for simpler testing; extra options
// are applied after those defaults.
//
// Example:
//
//	bus := eventbus.TestBus()
//	rec := eventbus.NewRecorder()
//	bus.Subscribe(ctx, "user.created", rec.Handler())
func TestBus(opts ...BusOption) *Bus {
	base := []BusOption{
		WithBusName("test-bus"),
		WithBusRecovery(false),
		WithBusTracing(false),
		WithBusMetrics(false),
	}
	return New(append(base, opts...)...)
}

// Recorded is one delivery seen by a Recorder
type Recorded struct {
	Scope     string
	Event     string
	Args      Args
	Source    string // publishing bus for remote deliveries
	Timestamp time.Time
}

// Recorder is a handler that records every delivery.
// Useful for asserting what a subscription received.
type Recorder struct {
	mu     sync.Mutex
	calls  []Recorded
	notify chan struct{}
	err    error
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Handler returns the recording handler
func (r *Recorder) Handler() Handler {
	return func(ctx context.Context, args Args) error {
		r.mu.Lock()
		r.calls = append(r.calls, Recorded{
			Scope:     ContextScope(ctx),
			Event:     ContextEvent(ctx),
			Args:      args,
			Source:    ContextSource(ctx),
			Timestamp: time.Now(),
		})
		err := r.err
		r.mu.Unlock()

		select {
		case r.notify <- struct{}{}:
		default:
		}
		return err
	}
}

// FailWith makes the handler return err after recording
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Calls returns a copy of all recorded deliveries
func (r *Recorder) Calls() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns the number of recorded deliveries
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset clears all recorded deliveries
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// Wait blocks until at least n deliveries were recorded or ctx is done.
func (r *Recorder) Wait(ctx context.Context, n int) error {
	for {
		if r.Count() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		}
	}
}
