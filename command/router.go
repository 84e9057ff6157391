// Package command dispatches decoded wire messages to named handlers.
//
// Parameter 0 of a message is the command name; handlers receive the
// remaining parameters, so argument 0 is the first value after the command:
//
//	r := command.New(command.WithName("worker"))
//	r.Handle("resize", func(ctx context.Context, args []message.Value) error {
//	    w := message.AsOr(args[0], 0)
//	    ...
//	})
//	r.Dispatch(ctx, message.New("ui", "worker", "resize", 800, 600), false)
//
// Commands are background work by default. Dispatching one from a context
// marked with WithRestricted fails with a ContextError unless the caller
// passes allowed=true or the command was registered with AllowRestricted.
package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/rbaliyan/eventbus/transport"
	"github.com/rbaliyan/eventbus/transport/message"
)

// Handler runs one command with the arguments following the command name.
type Handler func(ctx context.Context, args []message.Value) error

type entry struct {
	handler         Handler
	allowRestricted bool
}

// Router maps command names to handlers. It is safe for concurrent use.
type Router struct {
	opts *options

	mu       sync.RWMutex
	handlers map[string]entry
}

// New creates an empty router.
func New(opts ...Option) *Router {
	return &Router{
		opts:     newOptions(opts...),
		handlers: make(map[string]entry),
	}
}

// Name returns the router name used for target filtering
func (r *Router) Name() string {
	return r.opts.name
}

// Handle registers h for name, replacing any previous handler.
func (r *Router) Handle(name string, h Handler, opts ...HandleOption) error {
	if name == "" {
		return ErrEmptyCommand
	}
	if h == nil {
		return ErrNilHandler
	}
	ho := &handleOptions{}
	for _, opt := range opts {
		opt(ho)
	}

	r.mu.Lock()
	r.handlers[name] = entry{handler: h, allowRestricted: ho.allowRestricted}
	r.mu.Unlock()

	r.opts.logger.Debug("command registered", "command", name, "allow_restricted", ho.allowRestricted)
	return nil
}

// Remove unregisters name. It reports whether a handler was removed.
func (r *Router) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; !ok {
		return false
	}
	delete(r.handlers, name)
	return true
}

// Commands returns the registered command names in sorted order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Dispatch runs the handler named by msg's command.
//
// A nil message, a message without parameters or without a string command,
// a message addressed to another router and an unknown command are all
// no-ops. allowed marks the caller as entitled to run any command from the
// restricted context.
func (r *Router) Dispatch(ctx context.Context, msg *message.Message, allowed bool) error {
	name := msg.Command()
	if name == "" {
		return nil
	}
	if r.opts.name != "" && msg.Target != "" && msg.Target != r.opts.name {
		return nil
	}

	r.mu.RLock()
	e, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		r.opts.logger.Debug("unknown command", "command", name, "sender", msg.Sender)
		return nil
	}

	if !allowed && !e.allowRestricted && r.opts.guard.Restricted(ctx) {
		r.opts.logger.Error("command dispatched from restricted context", "command", name, "sender", msg.Sender)
		return &ContextError{Command: name}
	}

	if err := r.call(ctx, name, e.handler, msg.Args()); err != nil {
		return &DispatchError{Command: name, Err: err}
	}
	return nil
}

func (r *Router) call(ctx context.Context, name string, h Handler, args []message.Value) (err error) {
	if r.opts.recovery {
		defer func() {
			if p := recover(); p != nil {
				r.opts.logger.Error("command handler panic",
					"command", name, "panic", p, "stack", string(debug.Stack()))
				err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
			}
		}()
	}
	return h(ctx, args)
}

// Receive decodes data with the router codec and dispatches it as an
// unprivileged call. Undecodable input is dropped and reported to the drop
// handler; it is not an error.
func (r *Router) Receive(ctx context.Context, data []byte) error {
	msg, err := message.Decode(r.opts.codec, data)
	if err != nil {
		r.opts.logger.Warn("malformed command message", "size", len(data), "error", err)
		r.opts.onDrop(data, err)
		return nil
	}
	return r.Dispatch(ctx, msg, false)
}

// ReceiveFunc adapts the router to a bridge callback so that commands can
// arrive over any transport. Dispatch errors are logged.
func (r *Router) ReceiveFunc(ctx context.Context) transport.ReceiveFunc {
	return func(data []byte) {
		if err := r.Receive(ctx, data); err != nil {
			r.opts.logger.Warn("command failed", "error", err)
		}
	}
}

// Send encodes msg with the router codec and broadcasts it on bridge.
func (r *Router) Send(ctx context.Context, bridge transport.Bridge, msg *message.Message) error {
	data, err := message.Encode(r.opts.codec, msg)
	if err != nil {
		return err
	}
	return bridge.Broadcast(ctx, data)
}
