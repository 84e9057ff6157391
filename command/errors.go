package command

import (
	"errors"
	"fmt"
)

// Router errors
var (
	ErrRestrictedContext = errors.New("command invoked from restricted context")
	ErrHandlerPanic      = errors.New("command handler panicked")
	ErrNilHandler        = errors.New("nil command handler")
	ErrEmptyCommand      = errors.New("empty command name")
)

// ContextError is returned when a command runs in an execution context its
// registration forbids. It indicates a programming mistake.
type ContextError struct {
	Command string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("command %q: %v", e.Command, ErrRestrictedContext)
}

func (e *ContextError) Unwrap() error {
	return ErrRestrictedContext
}

// DispatchError wraps an error returned or raised by a command handler.
type DispatchError struct {
	Command string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("command %q: %v", e.Command, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
