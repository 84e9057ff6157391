package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/eventbus/transport/message"
)

func TestTopicNames(t *testing.T) {
	if got := NewTopic[reading]("temperature.updated").Name(); got != "temperature.updated" {
		t.Errorf("unexpected name %q", got)
	}
	if got := TopicOf[reading]().Name(); got != "github.com/rbaliyan/eventbus.reading" {
		t.Errorf("unexpected derived name %q", got)
	}
	if got := TopicOf[[]string]().Name(); got != "[]string" {
		t.Errorf("unexpected derived name %q", got)
	}
}

func TestTopicPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	bus := TestBus()
	sensors := bus.Scope("sensors")
	topic := NewTopic[reading]("temperature.updated")

	var got []reading
	token := topic.Subscribe(ctx, sensors, func(ctx context.Context, r reading) error {
		got = append(got, r)
		return nil
	})
	defer token.Unsubscribe()

	topic.Publish(ctx, sensors, reading{Value: 21.5, Unit: "C"})
	if err := topic.PublishAsync(ctx, sensors, reading{Value: 22}); err != nil {
		t.Fatalf("PublishAsync failed: %v", err)
	}

	if len(got) != 2 || got[0].Value != 21.5 || got[1].Value != 22 {
		t.Errorf("unexpected deliveries %+v", got)
	}
	if r, ok := topic.Sticky(sensors); !ok || r.Value != 22 {
		t.Errorf("unexpected sticky %+v, %v", r, ok)
	}
}

func TestTopicTypeMismatch(t *testing.T) {
	ctx := context.Background()
	var reported error
	bus := New(WithBusName("mismatch"), WithBusMetrics(false), WithBusTracing(false),
		WithErrorHandler(func(err error) { reported = err }))
	s := bus.Default()

	called := false
	NewTopic[int]("count").Subscribe(ctx, s, func(ctx context.Context, n int) error {
		called = true
		return nil
	})
	s.Publish(ctx, "count", "not a number")

	if called {
		t.Error("handler must not run on a mismatched payload")
	}
	if !errors.Is(reported, message.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", reported)
	}

	if _, ok := NewTopic[int]("count").Sticky(s); ok {
		t.Error("mismatched sticky payload must not convert")
	}
}
