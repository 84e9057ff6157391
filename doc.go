// Package eventbus provides scoped publish/subscribe with sticky replay and
// once delivery, and carries events between processes through a remote bridge.
//
// Events are identified by a name and carry an ordered vector of arguments
// (Args). Subscriptions live in a Scope; a Bus maps scope names to scopes and
// owns the optional remote bridge.
//
// Basic example:
//
//	bus := eventbus.New(eventbus.WithBusName("my-app"))
//	defer bus.Close(ctx)
//
//	sensors := bus.Scope("sensors")
//	token := sensors.Subscribe(ctx, "temperature.updated", func(ctx context.Context, args eventbus.Args) error {
//	    r, err := eventbus.Arg[Reading](args, 0)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(r.Value)
//	    return nil
//	}, eventbus.Sticky())
//	defer token.Unsubscribe()
//
//	sensors.Publish(ctx, "temperature.updated", Reading{Value: 21.5})
//
// Delivery semantics:
//   - Publish stores the arguments as the sticky entry of the event, even with
//     no subscribers, then calls the subscribers present at that moment in
//     subscription order. Unsubscribing during delivery does not change who
//     receives the current publish.
//   - PublishAsync runs each handler on its own goroutine and returns the
//     joined *HandlerError of every failed handler.
//   - Handler errors and recovered panics never stop delivery to the other
//     handlers. With Publish they go to the bus error handler only.
//   - A Once subscription fires at most once, however many publishes race,
//     and is removed after it fires even if the handler fails.
//   - A Sticky subscription receives the last published arguments
//     synchronously from Subscribe, before any later publish.
//
// Bus Options:
//   - WithBusName: name used in logs, metrics and traces.
//   - WithBusCodec: codec for remote envelopes. Default is JSON.
//   - WithBusTracing: enable/disable OpenTelemetry tracing. Default is true.
//   - WithBusRecovery: enable/disable panic recovery in handlers. Default is true.
//   - WithBusMetrics: enable/disable OpenTelemetry metrics. Default is true.
//   - WithBusLogger: set logger for the bus.
//   - WithErrorHandler: receive handler failures.
//   - WithDropHandler: receive envelopes that were dropped.
//   - WithInboundBuffer: size of the queue between the bridge and the bus.
//
// Subscribe Options:
//   - Once: remove after the first delivery.
//   - Sticky: replay the last published arguments on subscribe.
//   - WithExecutor: deliver through an execution context such as a UI loop.
//   - WithName: label the subscription in logs and errors.
//
// Remote delivery:
//
//	hub := channel.NewHub()
//	busA.EnableRemote(ctx, hub.Bridge())
//	busB.EnableRemote(ctx, hub.Bridge())
//
//	// local subscribers of busA and subscribers of scope "sensors" on busB
//	busA.PublishRemote(ctx, "sensors", "temperature.updated", Reading{Value: 21.5})
//
// Remote arguments arrive in their wire form (numbers, strings, maps) and are
// converted with Arg or ArgOr. Envelopes that fail to decode are dropped and
// reported to the drop handler. Bridges exist for in-process hubs
// (transport/channel), TCP (transport/stream), NATS, Redis and Kafka.
//
// Typed topics:
// Topic[T] wraps an event whose argument 0 is a T:
//
//	var TemperatureUpdated = eventbus.NewTopic[Reading]("temperature.updated")
//	TemperatureUpdated.Publish(ctx, sensors, Reading{Value: 21.5})
package eventbus
