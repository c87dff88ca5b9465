// Package ragstream - errors.go
// Defines session-specific errors.

package ragstream

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start when the slot already holds a
	// non-terminal session.
	ErrAlreadyRunning = errors.New("a session is already running in this slot")
	// ErrSessionClosed is returned when an operation targets a session that
	// has been disposed.
	ErrSessionClosed = errors.New("session has been closed")
	// ErrSourceDrained is returned by Next after the terminal event has been
	// delivered.
	ErrSourceDrained = errors.New("event source drained")
)

// InvalidTransitionError reports a control command that is not legal in the
// session's current state. The session state is left unchanged.
type InvalidTransitionError struct {
	From    State
	Command Command
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s not allowed in state %s", e.Command, e.From)
}

// UnsupportedOperationError reports a command the session kind cannot ever
// honor, e.g. pause on a turn-stream session.
type UnsupportedOperationError struct {
	Kind    SessionKind
	Command Command
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation: %s sessions do not support %s", e.Kind, e.Command)
}

// TransportError wraps a connection-level failure. Transport failures always
// terminate the session; they are never retried silently.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError wraps a malformed side-channel or analysis payload. Decode
// failures are absorbed locally: losing one metadata update must not abort an
// otherwise-healthy stream.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
