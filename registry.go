package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handler is called with the arguments of each delivered event.
// Returned errors are reported to the bus error handler; they never reach the
// publisher of a synchronous Publish.
type Handler func(ctx context.Context, args Args) error

// subscription is one registered handler
type subscription struct {
	id       string
	name     string
	event    string
	handler  Handler
	once     bool
	executor Executor

	fired   atomic.Bool // once subscriptions: set by the delivery that wins
	removed atomic.Bool

	// A sticky subscription is not live until its replay has run. Deliveries
	// captured before that are parked in pending and run after the replay.
	mu      sync.Mutex
	live    bool
	pending []pendingDelivery
}

type pendingDelivery struct {
	ctx  context.Context
	d    deliveryContextData
	args Args
	done chan error // set when the publisher waits for the result
}

func (s *subscription) label() string {
	if s.name != "" {
		return s.name
	}
	return s.id
}

// park queues a delivery if the subscription is not live yet. A non-nil done
// receives the handler result once the replaying goroutine has run it.
func (s *subscription) park(ctx context.Context, d deliveryContextData, args Args, done chan error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		return false
	}
	s.pending = append(s.pending, pendingDelivery{ctx: ctx, d: d, args: args, done: done})
	return true
}

// takePending returns parked deliveries, marking the subscription live when
// there are none left.
func (s *subscription) takePending() []pendingDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	if len(p) == 0 {
		s.live = true
	}
	return p
}

// subscriberList is the per-event list. Its mutex guards only list mutation,
// never handler execution.
type subscriberList struct {
	mu   sync.Mutex
	subs []*subscription
}

// snapshot returns a copy of the list. Caller holds mu.
func (l *subscriberList) snapshot() []*subscription {
	if len(l.subs) == 0 {
		return nil
	}
	out := make([]*subscription, len(l.subs))
	copy(out, l.subs)
	return out
}

func (l *subscriberList) remove(sub *subscription) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s == sub {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (l *subscriberList) clear() []*subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := l.subs
	l.subs = nil
	return subs
}

func (l *subscriberList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Token removes its subscription. Unsubscribe may be called any number of
// times, from any goroutine, including from inside the handler.
type Token struct {
	sub   *subscription
	scope *Scope
	once  sync.Once
}

// ID returns the subscription ID
func (t *Token) ID() string {
	if t == nil || t.sub == nil {
		return ""
	}
	return t.sub.id
}

// Unsubscribe removes the subscription. Deliveries already in progress finish.
func (t *Token) Unsubscribe() {
	if t == nil || t.sub == nil {
		return
	}
	t.once.Do(func() {
		t.scope.remove(t.sub)
	})
}

// Active reports whether the subscription can still receive events.
func (t *Token) Active() bool {
	if t == nil || t.sub == nil {
		return false
	}
	return !t.sub.removed.Load()
}
