// Package ragstream implements the incremental response session: the state
// machine, ordered accumulation and transport plumbing behind a live,
// partially-available stream of chat or analyzer output. A session consumes a
// lazy sequence of typed events from an EventSource and exposes a continuously
// updated Result snapshot until a terminal event closes it.
package ragstream

import "encoding/json"

// SessionKind selects which wire protocol a session speaks.
type SessionKind string

const (
	// KindTurnStream is a single request whose response body arrives in
	// chunks, with citation metadata carried in one response header.
	KindTurnStream SessionKind = "turn-stream"
	// KindAgentRun is a long-lived duplex session where the server pushes a
	// mix of status text, image frames and partial analysis patches.
	KindAgentRun SessionKind = "agent-run"
)

// EventType identifies one member of the typed event union produced by an
// EventSource.
type EventType string

const (
	EventTypeFragment    EventType = "fragment"
	EventTypeSideChannel EventType = "side_channel"
	EventTypeStatus      EventType = "status"
	EventTypeFrame       EventType = "frame"
	EventTypeTerminal    EventType = "terminal"
)

// TerminalReason says why a session reached its terminal event.
type TerminalReason string

const (
	TerminalComplete TerminalReason = "complete"
	TerminalError    TerminalReason = "error"
	TerminalStopped  TerminalReason = "stopped"
)

// Event is one unit emitted by an EventSource. Which fields are populated
// depends on Type:
//
//   - fragment: Text for turn-stream sessions, Payload (a named-field partial
//     update) for agent-run sessions
//   - side_channel: Payload (decoded citation list JSON)
//   - status: Text
//   - frame: Frame (base64-encoded image payload)
//   - terminal: Reason, plus Err when Reason is TerminalError
type Event struct {
	Type    EventType       `json:"type"`
	Text    string          `json:"text,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Frame   string          `json:"frame,omitempty"`
	Reason  TerminalReason  `json:"reason,omitempty"`
	Err     string          `json:"err,omitempty"`
}

// Command is a control instruction applied to a running session.
type Command string

const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"
)

// Citation is one source record carried on the side channel of a turn-stream
// session.
type Citation struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}
