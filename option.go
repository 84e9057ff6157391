package eventbus

// Executor runs fn, possibly on another goroutine, and returns once fn has
// returned. It stands for an execution context such as a UI thread.
type Executor func(fn func())

// subscribeOptions holds configuration for a subscription (unexported)
type subscribeOptions struct {
	once     bool
	sticky   bool
	name     string
	executor Executor
}

// SubscribeOption configures a subscription
type SubscribeOption func(*subscribeOptions)

// Once removes the subscription after its first delivery, even when the
// handler fails.
func Once() SubscribeOption {
	return func(o *subscribeOptions) {
		o.once = true
	}
}

// Sticky replays the last published arguments of the event, if any,
// synchronously from Subscribe before any later publish reaches the handler.
func Sticky() SubscribeOption {
	return func(o *subscribeOptions) {
		o.sticky = true
	}
}

// WithName labels the subscription in logs and errors.
func WithName(name string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.name = name
	}
}

// WithExecutor delivers through ex instead of the publishing goroutine.
func WithExecutor(ex Executor) SubscribeOption {
	return func(o *subscribeOptions) {
		o.executor = ex
	}
}

func newSubscribeOptions(opts ...SubscribeOption) *subscribeOptions {
	o := &subscribeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
