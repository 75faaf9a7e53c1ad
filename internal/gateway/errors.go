package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrSessionClosed  = errors.New("session closed")
)

// ValidationError wraps a failure in Command.Init.
type ValidationError struct {
	Command string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s request: %v", e.Command, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure in Command.Execute.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("error executing %s: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TransportError is a failed write to one session.
type TransportError struct {
	SessionID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
