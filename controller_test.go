package ragstream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartTwiceFailsWithAlreadyRunning(t *testing.T) {
	src := newFakeSource()
	ctrl := NewController()
	sess, err := ctrl.Start(context.Background(), KindTurnStream, openWith(src))
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	src.emit(Event{Type: EventTypeFragment, Text: "first"})
	waitFor(t, "fragment", func() bool { return sess.CurrentResult().Text == "first" })

	_, err = ctrl.Start(context.Background(), KindTurnStream, openWith(newFakeSource()))
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	// The first session is unaffected.
	if got := sess.State(); got != StateRunning {
		t.Errorf("duplicate start disturbed the active session: %s", got)
	}
	if got := ctrl.CurrentResult().Text; got != "first" {
		t.Errorf("duplicate start disturbed the result: %q", got)
	}
	sess.Stop(context.Background())
}

func TestStartAfterTerminalSucceeds(t *testing.T) {
	ctrl := NewController()
	src := newFakeSource()
	sess, err := ctrl.Start(context.Background(), KindTurnStream, openWith(src))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	src.emit(Event{Type: EventTypeTerminal, Reason: TerminalComplete})
	waitDone(t, sess)

	second := newFakeSource()
	sess2, err := ctrl.Start(context.Background(), KindTurnStream, openWith(second))
	if err != nil {
		t.Fatalf("restart after terminal failed: %v", err)
	}
	sess2.Stop(context.Background())
}

func TestOpenFailureFailsSlot(t *testing.T) {
	ctrl := NewController()
	boom := errors.New("connection refused")
	_, err := ctrl.Start(context.Background(), KindTurnStream, func(ctx context.Context) (EventSource, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected open error surfaced, got %v", err)
	}
	if got := ctrl.State(); got != StateFailed {
		t.Errorf("expected Failed slot, got %s", got)
	}

	// A failed slot is terminal; the next start must be allowed.
	src := newFakeSource()
	sess, err := ctrl.Start(context.Background(), KindTurnStream, openWith(src))
	if err != nil {
		t.Fatalf("start after failure rejected: %v", err)
	}
	sess.Stop(context.Background())
}

func TestEmptySlot(t *testing.T) {
	ctrl := NewController()
	if got := ctrl.State(); got != StateIdle {
		t.Errorf("expected Idle, got %s", got)
	}
	if r := ctrl.CurrentResult(); r.Text != "" || r.Err != "" {
		t.Errorf("expected zero result, got %+v", r)
	}
	if err := ctrl.Stop(context.Background()); err != nil {
		t.Errorf("stop on empty slot must succeed, got %v", err)
	}
	var invalid *InvalidTransitionError
	if err := ctrl.Pause(context.Background()); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}
	if err := ctrl.Resume(context.Background()); !errors.As(err, &invalid) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}
}

func TestPauseWhileDialingIsInvalidTransition(t *testing.T) {
	ctrl := NewController()
	opened := make(chan struct{})
	unblock := make(chan struct{})
	src := newFakeDuplexSource()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess, err := ctrl.Start(context.Background(), KindAgentRun,
			func(ctx context.Context) (EventSource, error) {
				close(opened)
				<-unblock
				return src, nil
			})
		if err != nil {
			t.Errorf("start failed: %v", err)
			return
		}
		sess.Stop(context.Background())
	}()

	<-opened
	// The slot is taken but the session is still Idle: pause is an invalid
	// transition, not a capability gap of the session kind.
	var invalid *InvalidTransitionError
	err := ctrl.Pause(context.Background())
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}
	var unsupported *UnsupportedOperationError
	if errors.As(err, &unsupported) {
		t.Errorf("pause before the transport opened must not report a capability error")
	}
	close(unblock)
	<-done
}

func TestTerminalResultAvailableUntilDisposed(t *testing.T) {
	ctrl := NewController()
	src := newFakeSource()
	sess, err := ctrl.Start(context.Background(), KindTurnStream, openWith(src))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	src.emit(Event{Type: EventTypeFragment, Text: "kept"})
	src.emit(Event{Type: EventTypeTerminal, Reason: TerminalComplete})
	waitDone(t, sess)

	if got := ctrl.CurrentResult().Text; got != "kept" {
		t.Errorf("terminal result not retained: %q", got)
	}
	if err := ctrl.Dispose(context.Background()); err != nil {
		t.Fatalf("dispose failed: %v", err)
	}
	if got := ctrl.CurrentResult().Text; got != "" {
		t.Errorf("result survived dispose: %q", got)
	}
	if got := ctrl.State(); got != StateIdle {
		t.Errorf("expected Idle after dispose, got %s", got)
	}
}

func TestObserverSeesStateChanges(t *testing.T) {
	states := make(chan State, 32)
	ctrl := NewController(WithObserver(func(s *Session) {
		select {
		case states <- s.State():
		default:
		}
	}))
	src := newFakeSource()
	sess, err := ctrl.Start(context.Background(), KindTurnStream, openWith(src))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	src.emit(Event{Type: EventTypeTerminal, Reason: TerminalComplete})
	waitDone(t, sess)

	sawRunning, sawCompleted := false, false
	deadline := time.After(time.Second)
	for !(sawRunning && sawCompleted) {
		select {
		case s := <-states:
			switch s {
			case StateRunning:
				sawRunning = true
			case StateCompleted:
				sawCompleted = true
			}
		case <-deadline:
			t.Fatalf("observer missed states: running=%v completed=%v", sawRunning, sawCompleted)
		}
	}
}
