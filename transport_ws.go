package ragstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Wire event names on the duplex channel. Server → client events map 1:1
// onto the typed event union; client → server commands are fire-and-forget.
const (
	WireStartAnalysis = "start-analysis"
	WirePause         = "pause"
	WireResume        = "resume"
	WireStop          = "stop"
	WireStatus        = "status"
	WireFrame         = "frame"
	WireAnalysis      = "analysis"
	WireComplete      = "complete"
	WireError         = "error"
)

// WireMessage is the JSON envelope exchanged on the duplex channel.
type WireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StartAnalysisPayload is the data of a start-analysis command.
type StartAnalysisPayload struct {
	URL string `json:"url"`
}

const wsWriteTimeout = 10 * time.Second

// DuplexTransport is the agent-run event source: a long-lived websocket on
// which the server pushes status, frame and analysis events and the client
// sends control commands on the same connection.
type DuplexTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var (
	_ EventSource   = (*DuplexTransport)(nil)
	_ CommandSender = (*DuplexTransport)(nil)
)

// OpenDuplex dials the analyzer endpoint and issues start-analysis for the
// target URL. The returned transport owns the connection until Close.
func OpenDuplex(ctx context.Context, dialer *websocket.Dialer, endpoint, target string, logger *slog.Logger) (*DuplexTransport, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: "dial analyzer", Err: err}
	}
	t := &DuplexTransport{conn: conn, logger: logger}
	data, err := json.Marshal(StartAnalysisPayload{URL: target})
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("encode start-analysis: %w", err)
	}
	if err := t.write(WireMessage{Event: WireStartAnalysis, Data: data}); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// Next reads wire messages until one maps onto the event union. Messages
// that fail to decode are logged and skipped; only connection-level failures
// surface as errors.
func (t *DuplexTransport) Next(ctx context.Context) (Event, error) {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Event{Type: EventTypeTerminal, Reason: TerminalComplete}, nil
			}
			return Event{}, &TransportError{Op: "read channel", Err: err}
		}
		var msg WireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warn("skipping malformed channel message", "error", err)
			continue
		}
		switch msg.Event {
		case WireStatus:
			var line string
			if err := json.Unmarshal(msg.Data, &line); err != nil {
				t.logger.Warn("skipping malformed status event", "error", err)
				continue
			}
			return Event{Type: EventTypeStatus, Text: line}, nil
		case WireFrame:
			var frame string
			if err := json.Unmarshal(msg.Data, &frame); err != nil {
				t.logger.Warn("skipping malformed frame event", "error", err)
				continue
			}
			return Event{Type: EventTypeFrame, Frame: frame}, nil
		case WireAnalysis:
			// A partial analysis patch is this protocol's fragment: a
			// named-field update applied by key-wise merge.
			return Event{Type: EventTypeFragment, Payload: msg.Data}, nil
		case WireComplete:
			return Event{Type: EventTypeTerminal, Reason: TerminalComplete}, nil
		case WireError:
			var errMsg string
			if err := json.Unmarshal(msg.Data, &errMsg); err != nil {
				errMsg = string(msg.Data)
			}
			return Event{Type: EventTypeTerminal, Reason: TerminalError, Err: errMsg}, nil
		default:
			t.logger.Warn("skipping unknown channel event", "event", msg.Event)
		}
	}
}

// Send emits a control command on the channel. Only pause, resume and stop
// are valid after open; the server does not acknowledge them.
func (t *DuplexTransport) Send(ctx context.Context, cmd Command) error {
	var event string
	switch cmd {
	case CommandPause:
		event = WirePause
	case CommandResume:
		event = WireResume
	case CommandStop:
		event = WireStop
	default:
		return fmt.Errorf("command %q cannot be sent on the channel", cmd)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.write(WireMessage{Event: event})
}

func (t *DuplexTransport) write(msg WireMessage) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := t.conn.WriteJSON(msg); err != nil {
		return &TransportError{Op: "send command", Err: err}
	}
	return nil
}

// Close sends a best-effort close frame and tears down the connection. A
// goroutine blocked in Next is unblocked with an error.
func (t *DuplexTransport) Close() error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
