package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"syreclabs.com/go/faker"
)

func init() {
	faker.Seed(time.Now().UnixNano())
}

type reading struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// collect returns a handler appending argument 0 to *got.
func collect(mu *sync.Mutex, got *[]any) Handler {
	return func(ctx context.Context, args Args) error {
		mu.Lock()
		*got = append(*got, args.Payload())
		mu.Unlock()
		return nil
	}
}

func TestPublishOrder(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Scope("test")

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		s.Subscribe(ctx, "tick", func(ctx context.Context, args Args) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}
	s.Publish(ctx, "tick")

	if diff := cmp.Diff([]string{"first", "second", "third"}, order); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()

	s.Publish(ctx, "nobody.listens", 1, "two")

	args, ok := s.Sticky("nobody.listens")
	if !ok {
		t.Fatal("expected sticky entry to be stored without subscribers")
	}
	if diff := cmp.Diff(Args{1, "two"}, args); diff != "" {
		t.Errorf("sticky mismatch (-want +got):\n%s", diff)
	}
}

func TestStickyReplay(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Scope("test")
	s.Publish(ctx, "config.changed", "v1")
	s.Publish(ctx, "config.changed", "v2")

	t.Run("sticky subscriber receives last args synchronously", func(t *testing.T) {
		var mu sync.Mutex
		var got []any
		token := s.Subscribe(ctx, "config.changed", collect(&mu, &got), Sticky())
		defer token.Unsubscribe()

		if diff := cmp.Diff([]any{"v2"}, got); diff != "" {
			t.Fatalf("replay mismatch (-want +got):\n%s", diff)
		}
		s.Publish(ctx, "config.changed", "v3")
		if diff := cmp.Diff([]any{"v2", "v3"}, got); diff != "" {
			t.Errorf("replay must precede later publishes (-want +got):\n%s", diff)
		}
	})

	t.Run("plain subscriber gets no replay", func(t *testing.T) {
		var mu sync.Mutex
		var got []any
		token := s.Subscribe(ctx, "config.changed", collect(&mu, &got))
		defer token.Unsubscribe()
		if len(got) != 0 {
			t.Errorf("expected no replay, got %v", got)
		}
	})

	t.Run("sticky without entry", func(t *testing.T) {
		var mu sync.Mutex
		var got []any
		token := s.Subscribe(ctx, "never.published", collect(&mu, &got), Sticky())
		defer token.Unsubscribe()
		if len(got) != 0 {
			t.Errorf("expected no replay, got %v", got)
		}
		if !token.Active() {
			t.Error("expected active subscription")
		}
	})
}

func TestTemperatureScenario(t *testing.T) {
	ctx := context.Background()
	bus := TestBus()
	sensors := bus.Scope("sensors")

	sensors.Publish(ctx, "temperature.updated", map[string]any{"value": 21.5})

	rec := NewRecorder()
	token := bus.Scope("sensors").Subscribe(ctx, "temperature.updated", rec.Handler(), Sticky())
	defer token.Unsubscribe()

	if rec.Count() != 1 {
		t.Fatalf("expected exactly one replay, got %d", rec.Count())
	}
	r, err := Arg[reading](rec.Calls()[0].Args, 0)
	if err != nil || r.Value != 21.5 {
		t.Errorf("expected value 21.5, got %+v (%v)", r, err)
	}
	if rec.Calls()[0].Scope != "sensors" || rec.Calls()[0].Event != "temperature.updated" {
		t.Errorf("unexpected delivery context %+v", rec.Calls()[0])
	}

	// other scopes are isolated
	bus.Default().Publish(ctx, "temperature.updated", map[string]any{"value": 0})
	if rec.Count() != 1 {
		t.Errorf("expected no delivery from another scope, got %d", rec.Count())
	}

	sensors.Publish(ctx, "temperature.updated", map[string]any{"value": 22.0})
	if rec.Count() != 2 {
		t.Errorf("expected delivery after republish, got %d", rec.Count())
	}
}

func TestOnceAtMostOnce(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Scope("test")

	var calls atomic.Int32
	token := s.Subscribe(ctx, "start", func(ctx context.Context, args Args) error {
		calls.Add(1)
		return nil
	}, Once())

	const publishers = 64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if i%2 == 0 {
				s.Publish(ctx, "start", i)
			} else {
				s.PublishAsync(ctx, "start", i)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly one delivery, got %d", got)
	}
	if s.Subscribers("start") != 0 {
		t.Errorf("expected once subscription to be removed, %d left", s.Subscribers("start"))
	}
	if token.Active() {
		t.Error("expected token to be inactive")
	}
}

func TestOnceRemovedOnFailure(t *testing.T) {
	ctx := context.Background()
	bus := New(WithBusName("once-failure"), WithBusMetrics(false), WithBusTracing(false))
	s := bus.Default()

	t.Run("error", func(t *testing.T) {
		var calls atomic.Int32
		s.Subscribe(ctx, "fail", func(ctx context.Context, args Args) error {
			calls.Add(1)
			return errors.New("boom")
		}, Once())
		s.Publish(ctx, "fail")
		s.Publish(ctx, "fail")
		if calls.Load() != 1 || s.Subscribers("fail") != 0 {
			t.Errorf("calls=%d subscribers=%d", calls.Load(), s.Subscribers("fail"))
		}
	})

	t.Run("panic", func(t *testing.T) {
		var calls atomic.Int32
		s.Subscribe(ctx, "panic", func(ctx context.Context, args Args) error {
			calls.Add(1)
			panic("boom")
		}, Once())
		s.Publish(ctx, "panic")
		s.Publish(ctx, "panic")
		if calls.Load() != 1 || s.Subscribers("panic") != 0 {
			t.Errorf("calls=%d subscribers=%d", calls.Load(), s.Subscribers("panic"))
		}
	})
}

func TestOnceStickyConsumedByReplay(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()
	s.Publish(ctx, "ready", true)

	rec := NewRecorder()
	token := s.Subscribe(ctx, "ready", rec.Handler(), Once(), Sticky())
	if rec.Count() != 1 {
		t.Fatalf("expected replay, got %d", rec.Count())
	}
	if token.Active() || s.Subscribers("ready") != 0 {
		t.Error("once subscription satisfied by replay must not stay registered")
	}
	s.Publish(ctx, "ready", true)
	if rec.Count() != 1 {
		t.Errorf("expected no further delivery, got %d", rec.Count())
	}
}

func TestReplayRacingPublish(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()
	s.Publish(ctx, "step", "first")

	var mu sync.Mutex
	var got []any
	token := s.Subscribe(ctx, "step", func(ctx context.Context, args Args) error {
		mu.Lock()
		got = append(got, args.Payload())
		mu.Unlock()
		if args.Payload() == "first" {
			s.Publish(ctx, "step", "second")
		}
		return nil
	}, Sticky())
	defer token.Unsubscribe()

	if diff := cmp.Diff([]any{"first", "second"}, got); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayPublishAsyncToOwnEvent(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()
	s.Publish(ctx, "loop", "first")

	var mu sync.Mutex
	var got []any
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Subscribe(ctx, "loop", func(ctx context.Context, args Args) error {
			mu.Lock()
			got = append(got, args.Payload())
			mu.Unlock()
			if args.Payload() == "first" {
				return s.PublishAsync(ctx, "loop", "second")
			}
			return nil
		}, Sticky())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replay handler publishing to its own event deadlocked")
	}
	if diff := cmp.Diff([]any{"first", "second"}, got); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishAsyncWaitsForReplay(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()
	s.Publish(ctx, "e", 1)

	started, release := make(chan struct{}), make(chan struct{})
	failure := errors.New("value 2 rejected")
	var deliveries atomic.Int32
	handler := func(ctx context.Context, args Args) error {
		deliveries.Add(1)
		if ArgOr(args, 0, 0) == 1 {
			close(started)
			<-release
			return nil
		}
		return failure
	}

	subscribed := make(chan *Token, 1)
	go func() { subscribed <- s.Subscribe(ctx, "e", handler, Sticky()) }()
	<-started

	result := make(chan error, 1)
	go func() { result <- s.PublishAsync(ctx, "e", 2) }()

	select {
	case err := <-result:
		t.Fatalf("PublishAsync returned during replay with %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-result:
		if !errors.Is(err, failure) {
			t.Errorf("expected handler failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PublishAsync did not return after the replay")
	}
	if n := deliveries.Load(); n != 2 {
		t.Errorf("expected 2 deliveries, got %d", n)
	}
	(<-subscribed).Unsubscribe()
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()

	var second *Token
	var secondCalls atomic.Int32
	s.Subscribe(ctx, "round", func(ctx context.Context, args Args) error {
		second.Unsubscribe()
		return nil
	})
	second = s.Subscribe(ctx, "round", func(ctx context.Context, args Args) error {
		secondCalls.Add(1)
		return nil
	})

	s.Publish(ctx, "round")
	if secondCalls.Load() != 1 {
		t.Fatalf("handler unsubscribed mid-publish must still get this round, got %d", secondCalls.Load())
	}
	s.Publish(ctx, "round")
	if secondCalls.Load() != 1 {
		t.Errorf("handler must not receive after unsubscribe, got %d", secondCalls.Load())
	}
}

func TestErrorIsolation(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var reported []error
	bus := New(
		WithBusName("isolation"),
		WithBusMetrics(false),
		WithBusTracing(false),
		WithErrorHandler(func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		}),
	)
	s := bus.Default()

	s.Subscribe(ctx, "work", func(ctx context.Context, args Args) error {
		return errors.New("failed")
	}, WithName("failing"))
	s.Subscribe(ctx, "work", func(ctx context.Context, args Args) error {
		panic("exploded")
	}, WithName("panicking"))
	rec := NewRecorder()
	s.Subscribe(ctx, "work", rec.Handler())

	s.Publish(ctx, "work")

	if rec.Count() != 1 {
		t.Errorf("handler after failures must still run, got %d", rec.Count())
	}
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported errors, got %d", len(reported))
	}
	var herr *HandlerError
	if !errors.As(reported[0], &herr) || herr.Subscription != "failing" || herr.Event != "work" {
		t.Errorf("unexpected first error %v", reported[0])
	}
	if !IsPanic(reported[1]) || !errors.Is(reported[1], ErrHandlerPanic) {
		t.Errorf("expected panic error, got %v", reported[1])
	}
}

func TestPublishAsync(t *testing.T) {
	ctx := context.Background()
	bus := New(WithBusName("async"), WithBusMetrics(false), WithBusTracing(false))
	s := bus.Default()

	// every handler waits for all three to start, which only happens when
	// they run concurrently
	var started sync.WaitGroup
	started.Add(3)
	barrier := func() error {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("handlers did not run concurrently")
		}
	}

	s.Subscribe(ctx, "job", func(ctx context.Context, args Args) error {
		if err := barrier(); err != nil {
			return err
		}
		return errors.New("first failed")
	}, WithName("one"))
	s.Subscribe(ctx, "job", func(ctx context.Context, args Args) error {
		return barrier()
	}, WithName("two"))
	s.Subscribe(ctx, "job", func(ctx context.Context, args Args) error {
		if err := barrier(); err != nil {
			return err
		}
		panic("third exploded")
	}, WithName("three"))

	err := s.PublishAsync(ctx, "job")
	if err == nil {
		t.Fatal("expected joined errors")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("expected joined error, got %T", err)
	}
	failed := map[string]bool{}
	for _, e := range joined.Unwrap() {
		var herr *HandlerError
		if !errors.As(e, &herr) {
			t.Fatalf("expected *HandlerError, got %T", e)
		}
		failed[herr.Subscription] = true
	}
	if diff := cmp.Diff(map[string]bool{"one": true, "three": true}, failed); diff != "" {
		t.Errorf("failed handlers mismatch (-want +got):\n%s", diff)
	}
	if !IsPanic(err) {
		t.Error("expected panic to be observable in joined error")
	}

	t.Run("no subscribers", func(t *testing.T) {
		if err := s.PublishAsync(ctx, "idle"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	bus := TestBus()
	s := bus.Scope("test")

	a := s.Subscribe(ctx, "a", NewRecorder().Handler())
	s.Subscribe(ctx, "a", NewRecorder().Handler())
	s.Subscribe(ctx, "b", NewRecorder().Handler())
	s.Publish(ctx, "a", 1)
	s.Publish(ctx, "b", 2)

	t.Run("RemoveAll clears one event", func(t *testing.T) {
		s.RemoveAll("a")
		if s.Subscribers("a") != 0 || s.Subscribers("b") != 1 {
			t.Errorf("a=%d b=%d", s.Subscribers("a"), s.Subscribers("b"))
		}
		if a.Active() {
			t.Error("removed subscription must be inactive")
		}
		if _, ok := s.Sticky("a"); !ok {
			t.Error("RemoveAll must keep the sticky entry")
		}
		s.RemoveSticky("a")
		if _, ok := s.Sticky("a"); ok {
			t.Error("RemoveSticky must drop the entry")
		}
	})

	t.Run("RemoveEverything clears lists and sticky cache", func(t *testing.T) {
		s.RemoveEverything()
		if s.Subscribers("b") != 0 {
			t.Error("expected no subscribers")
		}
		if _, ok := s.Sticky("b"); ok {
			t.Error("expected sticky cache to be cleared")
		}
		if len(s.Events()) != 0 {
			t.Errorf("expected no events, got %v", s.Events())
		}
	})

	t.Run("bus helpers", func(t *testing.T) {
		bus.Subscribe(ctx, "c", NewRecorder().Handler())
		bus.RemoveSubscription("c")
		if bus.Default().Subscribers("c") != 0 {
			t.Error("RemoveSubscription must clear the default scope")
		}

		other := bus.Scope("other")
		other.Subscribe(ctx, "d", NewRecorder().Handler())
		other.Publish(ctx, "d")
		bus.RemoveScopeSubscriptions("other")
		if other.Subscribers("d") != 0 {
			t.Error("expected scope subscriptions to be cleared")
		}
		if bus.Scope("other") != other {
			t.Error("scope must survive RemoveScopeSubscriptions")
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()
	rec := NewRecorder()
	token := s.Subscribe(ctx, "e", rec.Handler())

	token.Unsubscribe()
	token.Unsubscribe()
	s.Publish(ctx, "e")
	if rec.Count() != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", rec.Count())
	}

	var nilToken *Token
	nilToken.Unsubscribe()
	if nilToken.Active() || nilToken.ID() != "" {
		t.Error("nil token must be inert")
	}
	if s.Subscribe(ctx, "e", nil) != nil {
		t.Error("nil handler must not register")
	}
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Default()

	var viaExecutor atomic.Int32
	executor := func(fn func()) {
		viaExecutor.Add(1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn()
		}()
		<-done
	}

	rec := NewRecorder()
	s.Subscribe(ctx, "ui.refresh", rec.Handler(), WithExecutor(executor))
	s.Publish(ctx, "ui.refresh", faker.Lorem().Word())

	if viaExecutor.Load() != 1 || rec.Count() != 1 {
		t.Errorf("executor=%d deliveries=%d", viaExecutor.Load(), rec.Count())
	}
}

func TestDeliveryContext(t *testing.T) {
	ctx := context.Background()
	s := TestBus().Scope("ctx")

	var scope, event, subID string
	var remote bool
	token := s.Subscribe(ctx, "probe", func(ctx context.Context, args Args) error {
		scope, event, subID = ContextScope(ctx), ContextEvent(ctx), ContextSubscriptionID(ctx)
		remote = ContextRemote(ctx)
		return nil
	})
	s.Publish(ctx, "probe")

	if scope != "ctx" || event != "probe" || subID != token.ID() || remote {
		t.Errorf("scope=%q event=%q sub=%q remote=%v", scope, event, subID, remote)
	}
	if ContextScope(ctx) != "" {
		t.Error("plain context must carry no delivery info")
	}
}

func TestArgs(t *testing.T) {
	args := Args{"kitchen", 21.5, map[string]any{"value": 3.0}}

	if args.Len() != 3 || args.At(5) != nil {
		t.Error("Len/At mismatch")
	}
	if s, err := Arg[string](args, 0); err != nil || s != "kitchen" {
		t.Errorf("got %q, %v", s, err)
	}
	if r, err := Arg[reading](args, 2); err != nil || r.Value != 3 {
		t.Errorf("got %+v, %v", r, err)
	}
	if _, err := Arg[int](args, 9); !errors.Is(err, ErrArgMissing) {
		t.Errorf("expected ErrArgMissing, got %v", err)
	}
	if got := ArgOr(args, 0, 7); got != 7 {
		t.Errorf("expected default for mismatched type, got %d", got)
	}
}

func TestScopes(t *testing.T) {
	bus := TestBus()
	if bus.Scope("") != bus.Default() || bus.Default().Name() != DefaultScope {
		t.Error("empty name must resolve to the default scope")
	}
	if bus.Scope("a") != bus.Scope("a") {
		t.Error("one scope per name")
	}
	bus.Scope("b")
	if diff := cmp.Diff([]string{"a", "b", DefaultScope}, bus.Scopes()); diff != "" {
		t.Errorf("scopes mismatch (-want +got):\n%s", diff)
	}
}
