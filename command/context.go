package command

import "context"

type restrictedKey struct{}

// WithRestricted marks ctx as the restricted execution context, typically the
// UI or event loop goroutine that must never run background commands.
func WithRestricted(ctx context.Context) context.Context {
	return context.WithValue(ctx, restrictedKey{}, true)
}

// IsRestricted reports whether ctx was marked with WithRestricted.
func IsRestricted(ctx context.Context) bool {
	v, _ := ctx.Value(restrictedKey{}).(bool)
	return v
}

// Guard decides whether a dispatch is running inside the restricted context.
type Guard interface {
	Restricted(ctx context.Context) bool
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(ctx context.Context) bool

// Restricted implements Guard
func (f GuardFunc) Restricted(ctx context.Context) bool {
	return f(ctx)
}

// DefaultGuard reads the WithRestricted mark.
var DefaultGuard Guard = GuardFunc(IsRestricted)
