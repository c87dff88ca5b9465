package ragstream

// State is the lifecycle state of a session.
//
//	Idle → Running → {Paused ⇄ Running} → {Completed | Stopped | Failed}
//
// Completed, Stopped and Failed are terminal and immutable once entered.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// Terminal reports whether s is one of the three terminal states.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}

// nextState validates cmd against the current state and returns the state the
// session moves to. Illegal transitions return an *InvalidTransitionError and
// never change the session. The state machine is the single authority on
// whether a command is legal; kind restrictions (pause on a turn-stream) are
// checked by the session before consulting it.
func nextState(s State, cmd Command) (State, error) {
	switch cmd {
	case CommandStart:
		if s == StateIdle {
			return StateRunning, nil
		}
	case CommandPause:
		if s == StateRunning {
			return StatePaused, nil
		}
	case CommandResume:
		if s == StatePaused {
			return StateRunning, nil
		}
	case CommandStop:
		// Stop is legal from any non-terminal state; it is the escape hatch
		// for caller-initiated cancellation.
		if !s.Terminal() {
			return StateStopped, nil
		}
	}
	return s, &InvalidTransitionError{From: s, Command: cmd}
}

// terminalState maps a terminal event reason onto the state it produces.
func terminalState(reason TerminalReason) State {
	switch reason {
	case TerminalError:
		return StateFailed
	case TerminalStopped:
		return StateStopped
	default:
		return StateCompleted
	}
}
