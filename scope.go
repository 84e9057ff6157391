package eventbus

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Scope is an isolated namespace of subscriptions and sticky entries.
// Scopes are created by a Bus and live as long as it does.
//
// Locking is per event: publishing or subscribing to one event never waits
// on another event of the same scope.
type Scope struct {
	name   string
	bus    *Bus
	lists  sync.Map // map[string]*subscriberList
	sticky sync.Map // map[string]Args
}

func newScope(name string, b *Bus) *Scope {
	return &Scope{name: name, bus: b}
}

// Name returns the scope name
func (s *Scope) Name() string {
	return s.name
}

func (s *Scope) list(event string) *subscriberList {
	if v, ok := s.lists.Load(event); ok {
		return v.(*subscriberList)
	}
	v, _ := s.lists.LoadOrStore(event, &subscriberList{})
	return v.(*subscriberList)
}

// Subscribe registers handler for event and returns its token.
// It returns nil when handler is nil.
//
// With Sticky, the last published arguments are replayed synchronously before
// Subscribe returns; publishes that race with the replay are delivered after it.
// With Once and Sticky, a replay consumes the subscription.
func (s *Scope) Subscribe(ctx context.Context, event string, handler Handler, opts ...SubscribeOption) *Token {
	if handler == nil {
		return nil
	}
	o := newSubscribeOptions(opts...)
	sub := &subscription{
		id:       NewID(),
		name:     o.name,
		event:    event,
		handler:  handler,
		once:     o.once,
		executor: o.executor,
	}

	l := s.list(event)
	l.mu.Lock()
	var cached Args
	replay := false
	if o.sticky {
		if v, ok := s.sticky.Load(event); ok {
			cached, replay = v.(Args), true
		}
	}
	sub.live = !replay
	if replay && sub.once {
		// satisfied by the replay, never becomes visible to publishers
		sub.fired.Store(true)
		sub.removed.Store(true)
	} else {
		l.subs = append(l.subs, sub)
	}
	l.mu.Unlock()

	s.bus.logger.Debug("subscribed", "scope", s.name, "event", event,
		"subscription", sub.label(), "once", sub.once, "replay", replay)

	token := &Token{sub: sub, scope: s}
	if !replay {
		return token
	}

	d := deliveryContextData{scope: s.name, event: event}
	s.report(ctx, s.run(ctx, d, sub, cached))
	for {
		pending := sub.takePending()
		if len(pending) == 0 {
			break
		}
		for _, p := range pending {
			err := s.invoke(p.ctx, p.d, sub, p.args)
			if p.done != nil {
				p.done <- err
				continue
			}
			s.report(p.ctx, err)
		}
	}
	return token
}

// Publish stores args as the sticky entry of event and delivers them to the
// current subscribers in subscription order. Handler failures are reported to
// the bus error handler and never stop delivery to the remaining handlers.
func (s *Scope) Publish(ctx context.Context, event string, args ...any) {
	s.publish(ctx, deliveryContextData{scope: s.name, event: event}, args, false)
}

// PublishAsync is Publish with every handler running on its own goroutine.
// It waits for all of them and returns one *HandlerError per failed handler,
// joined with errors.Join.
func (s *Scope) PublishAsync(ctx context.Context, event string, args ...any) error {
	return s.publish(ctx, deliveryContextData{scope: s.name, event: event}, args, true)
}

func (s *Scope) publish(ctx context.Context, d deliveryContextData, args Args, async bool) error {
	ctx, span := s.bus.startSpan(ctx, d.event+".publish", trace.SpanKindProducer, s.name, d.event, d.source)
	defer span.End()

	args = args.clone()
	l := s.list(d.event)
	l.mu.Lock()
	s.sticky.Store(d.event, args)
	subs := l.snapshot()
	l.mu.Unlock()

	s.bus.metrics.recordPublished(ctx, s.name, d.event)
	if len(subs) == 0 {
		return nil
	}

	if !async {
		for _, sub := range subs {
			s.report(ctx, s.deliver(ctx, d, sub, args, false))
		}
		return nil
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.deliver(ctx, d, sub, args, true)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		s.report(ctx, err)
	}
	return errors.Join(errs...)
}

// deliver invokes sub unless it is still replaying, in which case the
// delivery is parked for the replaying goroutine. With wait set, deliver
// blocks until the parked delivery has run and returns its error. A handler
// publishing to its own event during its replay never waits on itself.
func (s *Scope) deliver(ctx context.Context, d deliveryContextData, sub *subscription, args Args, wait bool) error {
	var done chan error
	if wait && ContextSubscriptionID(ctx) != sub.id {
		done = make(chan error, 1)
	}
	if !sub.park(ctx, d, args, done) {
		return s.invoke(ctx, d, sub, args)
	}
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invoke runs the handler, enforcing once semantics.
func (s *Scope) invoke(ctx context.Context, d deliveryContextData, sub *subscription, args Args) error {
	if sub.once {
		if !sub.fired.CompareAndSwap(false, true) {
			return nil
		}
		defer s.remove(sub)
	}
	return s.run(ctx, d, sub, args)
}

func (s *Scope) run(ctx context.Context, d deliveryContextData, sub *subscription, args Args) error {
	d.subID = sub.id
	hctx := contextWithDelivery(ctx, d)

	var err error
	call := func() {
		err = s.call(hctx, sub, args)
	}
	if sub.executor != nil {
		sub.executor(call)
	} else {
		call()
	}

	if err != nil {
		return &HandlerError{Scope: s.name, Event: sub.event, Subscription: sub.label(), Err: err}
	}
	return nil
}

func (s *Scope) call(ctx context.Context, sub *subscription, args Args) (err error) {
	if s.bus.recoveryEnabled {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				s.bus.logger.Error("handler panic recovered",
					"scope", s.name,
					"event", sub.event,
					"subscription", sub.label(),
					"error", r,
					"stack", string(stack),
				)
				err = &PanicError{Value: r, Stack: stack}
			}
		}()
	}
	return sub.handler(ctx, args)
}

func (s *Scope) report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	var herr *HandlerError
	if errors.As(err, &herr) {
		s.bus.logger.Warn("handler failed",
			"scope", herr.Scope, "event", herr.Event,
			"subscription", herr.Subscription, "error", herr.Err)
		s.bus.metrics.recordHandlerError(ctx, herr.Scope, herr.Event)
	}
	s.bus.onError(err)
}

func (s *Scope) remove(sub *subscription) {
	sub.removed.Store(true)
	if v, ok := s.lists.Load(sub.event); ok {
		if v.(*subscriberList).remove(sub) {
			s.bus.logger.Debug("unsubscribed", "scope", s.name, "event", sub.event, "subscription", sub.label())
		}
	}
}

// RemoveAll removes every subscription of event. The sticky entry stays.
func (s *Scope) RemoveAll(event string) {
	if v, ok := s.lists.Load(event); ok {
		for _, sub := range v.(*subscriberList).clear() {
			sub.removed.Store(true)
		}
	}
}

// RemoveEverything removes every subscription and every sticky entry of the scope.
func (s *Scope) RemoveEverything() {
	s.lists.Range(func(key, value any) bool {
		for _, sub := range value.(*subscriberList).clear() {
			sub.removed.Store(true)
		}
		return true
	})
	s.sticky.Range(func(key, _ any) bool {
		s.sticky.Delete(key)
		return true
	})
}

// Sticky returns the last arguments published to event.
func (s *Scope) Sticky(event string) (Args, bool) {
	v, ok := s.sticky.Load(event)
	if !ok {
		return nil, false
	}
	return v.(Args).clone(), true
}

// RemoveSticky forgets the sticky entry of event.
func (s *Scope) RemoveSticky(event string) {
	s.sticky.Delete(event)
}

// Subscribers returns the number of subscriptions of event.
func (s *Scope) Subscribers(event string) int {
	if v, ok := s.lists.Load(event); ok {
		return v.(*subscriberList).len()
	}
	return 0
}

// Events returns the sorted names of events that have subscribers or a sticky entry.
func (s *Scope) Events() []string {
	seen := make(map[string]struct{})
	s.lists.Range(func(key, value any) bool {
		if value.(*subscriberList).len() > 0 {
			seen[key.(string)] = struct{}{}
		}
		return true
	})
	s.sticky.Range(func(key, _ any) bool {
		seen[key.(string)] = struct{}{}
		return true
	})
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
