package eventbus

import (
	"context"
	"reflect"
)

// Topic is a typed view of one event carrying a single payload of type T at
// argument 0. Prefer explicit, versioned names shared by every process:
//
//	var TemperatureUpdated = eventbus.NewTopic[Reading]("temperature.updated")
//
//	TemperatureUpdated.Subscribe(ctx, bus.Scope("sensors"),
//	    func(ctx context.Context, r Reading) error {
//	        fmt.Println(r.Value)
//	        return nil
//	    }, eventbus.Sticky())
//	TemperatureUpdated.Publish(ctx, bus.Scope("sensors"), Reading{Value: 21.5})
type Topic[T any] struct {
	name string
}

// NewTopic creates a topic with an explicit event name.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

// TopicOf creates a topic named after T's package path and type name.
// The name changes when the type moves or is renamed; use NewTopic for events
// that cross process boundaries.
func TopicOf[T any]() Topic[T] {
	return Topic[T]{name: typeName(reflect.TypeFor[T]())}
}

func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// Name returns the event name
func (t Topic[T]) Name() string {
	return t.name
}

// Publish publishes v to s.
func (t Topic[T]) Publish(ctx context.Context, s *Scope, v T) {
	s.Publish(ctx, t.name, v)
}

// PublishAsync publishes v to s with concurrent handlers.
func (t Topic[T]) PublishAsync(ctx context.Context, s *Scope, v T) error {
	return s.PublishAsync(ctx, t.name, v)
}

// PublishRemote publishes v to the named scope of b and to remote buses.
func (t Topic[T]) PublishRemote(ctx context.Context, b *Bus, scope string, v T) {
	b.PublishRemote(ctx, scope, t.name, v)
}

// Subscribe registers fn on s. An argument 0 that cannot be converted to T
// is reported as a handler error and fn is not called.
func (t Topic[T]) Subscribe(ctx context.Context, s *Scope, fn func(ctx context.Context, v T) error, opts ...SubscribeOption) *Token {
	if fn == nil {
		return nil
	}
	return s.Subscribe(ctx, t.name, func(ctx context.Context, args Args) error {
		v, err := Arg[T](args, 0)
		if err != nil {
			return err
		}
		return fn(ctx, v)
	}, opts...)
}

// Sticky returns the last payload published to the topic in s.
func (t Topic[T]) Sticky(s *Scope) (T, bool) {
	args, ok := s.Sticky(t.name)
	if !ok {
		var zero T
		return zero, false
	}
	v, err := Arg[T](args, 0)
	return v, err == nil
}
