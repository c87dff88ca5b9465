package ragstream

import "context"

// EventSource is a lazy, ordered, potentially-infinite sequence of typed
// events produced by a transport. Next blocks until the next event is
// available, the context is done, or the transport fails. After a terminal
// event has been delivered, Next returns ErrSourceDrained.
//
// Sources are pull-based on purpose: cancellation is "stop pulling and
// Close", not unregistering a pile of push callbacks. An EventSource is owned
// by exactly one session; no external code reads from the underlying
// connection directly.
type EventSource interface {
	Next(ctx context.Context) (Event, error)
	// Close releases the underlying transport. It must be safe to call from
	// a goroutine other than the one blocked in Next, must unblock a pending
	// Next, and must be idempotent.
	Close() error
}

// CommandSender is implemented by duplex sources that can carry control
// commands back upstream on the same channel. Commands are fire-and-forget;
// no acknowledgement event is expected.
type CommandSender interface {
	Send(ctx context.Context, cmd Command) error
}

// OpenFunc opens the transport for a new session. The context is the
// session's own context: cancelling it must abort a pending open.
type OpenFunc func(ctx context.Context) (EventSource, error)
