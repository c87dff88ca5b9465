package ragstream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Recorder persists the ordered raw event log of a session for replay and
// debugging. Append failures are logged, never fatal.
type Recorder interface {
	Append(sessionID string, seq int, ev Event) error
}

// Session is one live incremental response exchange. It owns its transport
// exclusively for its lifetime: a single consumer goroutine pulls events from
// the EventSource, runs them through the state gate and applies accepted ones
// to the accumulator, so no two events for one session are ever processed
// concurrently and fragment order is preserved without speculative
// application.
type Session struct {
	id   string
	kind SessionKind

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	acc     *accumulator
	errMsg  string
	events  []Event
	seq     int
	source  EventSource
	started bool

	recorder  Recorder
	logger    *slog.Logger
	closeWait time.Duration
	notify    func(*Session)

	releaseOnce sync.Once
	done        chan struct{}
}

func newSession(ctx context.Context, kind SessionKind, c *Controller) *Session {
	id, err := gonanoid.New()
	if err != nil {
		panic(err)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:        id,
		kind:      kind,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		acc:       newAccumulator(c.logger),
		recorder:  c.recorder,
		logger:    c.logger,
		closeWait: c.closeWait,
		notify:    c.observer,
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Kind() SessionKind { return s.kind }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentResult returns a non-blocking snapshot of the accumulated value. It
// never observes a torn write: snapshots are taken between complete event
// applications. Callable at any time, including after termination.
func (s *Session) CurrentResult() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.acc.snapshot()
	r.Err = s.errMsg
	return r
}

// Events returns a copy of the ordered raw event log.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Done is closed once the session's consumer goroutine has exited and the
// transport has been released.
func (s *Session) Done() <-chan struct{} { return s.done }

// begin attaches the opened transport and starts the consumer goroutine. If
// the session was stopped while the transport was still opening, the
// transport is closed immediately and no events are consumed.
func (s *Session) begin(src EventSource) {
	s.mu.Lock()
	s.source = src
	if s.state.Terminal() {
		s.mu.Unlock()
		src.Close()
		s.release()
		return
	}
	next, err := nextState(s.state, CommandStart)
	if err != nil {
		s.mu.Unlock()
		src.Close()
		s.release()
		return
	}
	s.state = next
	s.started = true
	s.mu.Unlock()
	s.notifyObserver()
	go s.run()
}

// run is the single consumer loop: pull the next event, gate it, apply it.
func (s *Session) run() {
	s.logger.Info("session started", "sessionID", s.id, "kind", s.kind)
	defer s.release()
	for {
		ev, err := s.source.Next(s.ctx)
		if err != nil {
			s.mu.Lock()
			if s.state.Terminal() {
				s.mu.Unlock()
				return
			}
			s.state = StateFailed
			s.errMsg = err.Error()
			// The raw log gets a synthetic terminal row, same as Stop, so a
			// replayed failed session does not just end mid-stream.
			s.seq++
			term := Event{Type: EventTypeTerminal, Reason: TerminalError, Err: err.Error()}
			s.events = append(s.events, term)
			if s.recorder != nil {
				if rerr := s.recorder.Append(s.id, s.seq, term); rerr != nil {
					s.logger.Warn("event recorder append failed", "sessionID", s.id, "error", rerr)
				}
			}
			s.mu.Unlock()
			s.logger.Error("session transport failed", "sessionID", s.id, "error", err)
			s.notifyObserver()
			return
		}
		if terminal := s.apply(ev); terminal {
			return
		}
	}
}

// apply runs one event through the state gate and the accumulator. Events
// arriving after a terminal state are dropped, not buffered. Returns true
// once the session is terminal.
func (s *Session) apply(ev Event) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return true
	}
	s.seq++
	s.events = append(s.events, ev)
	if s.recorder != nil {
		if err := s.recorder.Append(s.id, s.seq, ev); err != nil {
			s.logger.Warn("event recorder append failed", "sessionID", s.id, "error", err)
		}
	}

	var decodeErr error
	switch ev.Type {
	case EventTypeFragment:
		if s.kind == KindAgentRun {
			decodeErr = s.acc.applyAnalysis(ev.Payload)
		} else {
			s.acc.appendText(ev.Text)
		}
	case EventTypeSideChannel:
		decodeErr = s.acc.applyCitations(ev.Payload)
	case EventTypeStatus:
		s.acc.pushStatus(ev.Text)
	case EventTypeFrame:
		s.acc.setFrame(ev.Frame)
	case EventTypeTerminal:
		s.state = terminalState(ev.Reason)
		if ev.Reason == TerminalError {
			s.errMsg = ev.Err
		}
	}
	terminal := s.state.Terminal()
	s.mu.Unlock()

	if decodeErr != nil {
		s.logger.Warn("dropping undecodable event", "sessionID", s.id, "error", decodeErr)
	}
	s.notifyObserver()
	return terminal
}

// Pause suspends a pausable session. Turn-stream sessions have no pause
// capability; the command is rejected with an UnsupportedOperationError, not
// a crash.
func (s *Session) Pause(ctx context.Context) error {
	return s.control(ctx, CommandPause)
}

// Resume lifts a pause.
func (s *Session) Resume(ctx context.Context) error {
	return s.control(ctx, CommandResume)
}

func (s *Session) control(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	// Transition legality first: a pause while the transport is still
	// dialing is an invalid transition from Idle, not a capability gap.
	next, err := nextState(s.state, cmd)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	sender, pausable := s.source.(CommandSender)
	if s.kind != KindAgentRun || !pausable {
		s.mu.Unlock()
		return &UnsupportedOperationError{Kind: s.kind, Command: cmd}
	}
	s.mu.Unlock()

	if err := sender.Send(ctx, cmd); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = next
	}
	s.mu.Unlock()
	s.notifyObserver()
	return nil
}

// Stop cancels the session. It is legal from any non-terminal state, a no-op
// afterwards, and the only operation guaranteed to succeed unconditionally.
// The transport is closed immediately; events already in flight past this
// point are dropped. Stop waits for the consumer goroutine to exit, bounded
// by the configured close wait.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	s.seq++
	ev := Event{Type: EventTypeTerminal, Reason: TerminalStopped}
	s.events = append(s.events, ev)
	if s.recorder != nil {
		if err := s.recorder.Append(s.id, s.seq, ev); err != nil {
			s.logger.Warn("event recorder append failed", "sessionID", s.id, "error", err)
		}
	}
	sender, _ := s.source.(CommandSender)
	src := s.source
	started := s.started
	s.mu.Unlock()

	if sender != nil {
		// Best effort: the remote may already be gone.
		if err := sender.Send(ctx, CommandStop); err != nil {
			s.logger.Warn("stop command send failed", "sessionID", s.id, "error", err)
		}
	}
	s.cancel()
	if src != nil {
		src.Close()
	}
	if started {
		// The loop normally exits on the next pull; the wait is bounded so a
		// wedged transport cannot hold the caller hostage.
		select {
		case <-s.done:
		case <-time.After(s.closeWait):
			s.logger.Warn("session did not drain before close deadline", "sessionID", s.id)
		}
	} else {
		s.release()
	}
	s.notifyObserver()
	return nil
}

// fail marks a session that never got a transport as Failed.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = StateFailed
		s.errMsg = err.Error()
	}
	s.mu.Unlock()
	s.release()
	s.notifyObserver()
}

// release closes the transport and signals Done exactly once. Every exit
// path of the consumer loop funnels through here so the underlying
// connection is never leaked.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		src := s.source
		s.mu.Unlock()
		if src != nil {
			if err := src.Close(); err != nil {
				s.logger.Warn("transport close failed", "sessionID", s.id, "error", err)
			}
		}
		s.cancel()
		close(s.done)
	})
}

func (s *Session) notifyObserver() {
	if s.notify != nil {
		s.notify(s)
	}
}
