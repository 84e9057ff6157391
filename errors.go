package eventbus

import (
	"errors"
	"fmt"

	"github.com/rbaliyan/eventbus/transport/message"
)

// Bus errors
var (
	ErrBusClosed      = errors.New("bus is closed")
	ErrBridgeRequired = errors.New("remote bridge is required")
	ErrHandlerPanic   = errors.New("handler panicked")

	// ErrArgMissing is returned by Arg when the index is out of range.
	ErrArgMissing = message.ErrArgMissing
)

// HandlerError reports the failure of one subscription during a publish.
// PublishAsync joins one HandlerError per failed handler.
//
//	err := scope.PublishAsync(ctx, "order.created", order)
//	var herr *eventbus.HandlerError
//	if errors.As(err, &herr) {
//	    log.Printf("%s failed: %v", herr.Subscription, herr.Err)
//	}
type HandlerError struct {
	Scope        string
	Event        string
	Subscription string
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s/%s: %v", e.Subscription, e.Scope, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError is the error produced when a handler panics and recovery is enabled.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrHandlerPanic, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrHandlerPanic
}

// IsPanic checks if an error was produced by a recovered handler panic.
func IsPanic(err error) bool {
	var p *PanicError
	return errors.As(err, &p)
}
