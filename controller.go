package ragstream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCloseWait is the default hard upper bound a Stop waits for the
// consumer loop to drain before forcing resource release.
const DefaultCloseWait = 5 * time.Second

// Controller is the public face of one session slot. Only one session can be
// active in a slot at a time; a second Start before the first terminates
// fails with ErrAlreadyRunning. The controller has no UI effects: it only
// notifies the configured observer of state and result changes.
type Controller struct {
	logger    *slog.Logger
	recorder  Recorder
	closeWait time.Duration
	observer  func(*Session)

	mu   sync.Mutex
	sess *Session
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger used by the controller and its sessions.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithRecorder persists every session's raw event log through r.
func WithRecorder(r Recorder) ControllerOption {
	return func(c *Controller) { c.recorder = r }
}

// WithCloseWait overrides the bounded wait applied when stopping a session
// whose transport never delivers a terminal event.
func WithCloseWait(d time.Duration) ControllerOption {
	return func(c *Controller) { c.closeWait = d }
}

// WithObserver registers a callback invoked after every state or result
// change. The callback runs on the session's consumer goroutine and must not
// block.
func WithObserver(fn func(*Session)) ControllerOption {
	return func(c *Controller) { c.observer = fn }
}

// NewController constructs an empty session slot.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		logger:    slog.Default(),
		closeWait: DefaultCloseWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a transport via open and begins consuming events. The slot is
// reserved before the transport dial so a concurrent duplicate Start fails
// fast with ErrAlreadyRunning instead of racing two connections.
func (c *Controller) Start(ctx context.Context, kind SessionKind, open OpenFunc) (*Session, error) {
	c.mu.Lock()
	if c.sess != nil && !c.sess.State().Terminal() {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	sess := newSession(ctx, kind, c)
	c.sess = sess
	c.mu.Unlock()

	src, err := open(sess.ctx)
	if err != nil {
		sess.fail(err)
		return nil, err
	}
	sess.begin(src)
	return sess, nil
}

// current returns the session occupying the slot, if any.
func (c *Controller) current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Pause delegates to the active session.
func (c *Controller) Pause(ctx context.Context) error {
	sess := c.current()
	if sess == nil {
		return &InvalidTransitionError{From: StateIdle, Command: CommandPause}
	}
	return sess.Pause(ctx)
}

// Resume delegates to the active session.
func (c *Controller) Resume(ctx context.Context) error {
	sess := c.current()
	if sess == nil {
		return &InvalidTransitionError{From: StateIdle, Command: CommandResume}
	}
	return sess.Resume(ctx)
}

// Stop cancels the active session. With no active session it is a no-op;
// stop must always succeed so callers can use it for cleanup on navigation
// away from the session.
func (c *Controller) Stop(ctx context.Context) error {
	sess := c.current()
	if sess == nil {
		return nil
	}
	return sess.Stop(ctx)
}

// State reports the slot's lifecycle state, StateIdle when empty.
func (c *Controller) State() State {
	sess := c.current()
	if sess == nil {
		return StateIdle
	}
	return sess.State()
}

// CurrentResult returns a non-blocking snapshot of the active or last
// terminal session. Terminal sessions keep their final Result available
// until the slot is disposed.
func (c *Controller) CurrentResult() Result {
	sess := c.current()
	if sess == nil {
		return Result{}
	}
	return sess.CurrentResult()
}

// Dispose stops whatever occupies the slot and clears it.
func (c *Controller) Dispose(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Stop(ctx)
}
