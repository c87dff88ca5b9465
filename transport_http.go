package ragstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"unicode/utf8"
)

// ChatMessage is one role+content pair of the conversation history sent on a
// turn-stream request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the body of a turn-stream request: the ordered conversation
// history plus optional context document ids to ground the answer on.
type TurnRequest struct {
	Messages   []ChatMessage `json:"messages"`
	ContextIDs []string      `json:"context_ids,omitempty"`
}

// ChunkedTransport reads a turn-stream response incrementally: one side
// channel event decoded from the sources header, then one fragment event per
// decoded body chunk, then terminal(complete) at EOF. The body is never
// buffered whole, and multi-byte UTF-8 sequences split across chunk
// boundaries are reassembled before emission.
type ChunkedTransport struct {
	body   io.ReadCloser
	logger *slog.Logger

	pending []Event
	buf     []byte
	tail    []byte // prefix of a rune whose remaining bytes have not arrived
	done    bool

	closeOnce sync.Once
	closeErr  error
}

var _ EventSource = (*ChunkedTransport)(nil)

// OpenChunked issues the turn-stream request and prepares the event source.
// The sources header is read exactly once, here, before any fragment is
// emitted; a malformed header only skips the side-channel event and is
// logged, it never aborts the fragment stream.
func OpenChunked(ctx context.Context, client *http.Client, url string, req TurnRequest, logger *slog.Logger) (*ChunkedTransport, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode turn request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "open stream", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &TransportError{Op: "open stream", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	t := &ChunkedTransport{
		body:   resp.Body,
		logger: logger,
		buf:    make([]byte, 4096),
	}
	if encoded := resp.Header.Get(SourcesHeader); encoded != "" {
		_, raw, err := DecodeSources(encoded)
		if err != nil {
			logger.Warn("skipping malformed sources header", "error", err)
		} else {
			t.pending = append(t.pending, Event{Type: EventTypeSideChannel, Payload: raw})
		}
	}
	return t, nil
}

// Next returns the next event, reading more of the body as needed.
func (t *ChunkedTransport) Next(ctx context.Context) (Event, error) {
	for {
		if len(t.pending) > 0 {
			ev := t.pending[0]
			t.pending = t.pending[1:]
			return ev, nil
		}
		if t.done {
			return Event{}, ErrSourceDrained
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		n, err := t.body.Read(t.buf)
		if n > 0 {
			data := append(t.tail, t.buf[:n]...)
			complete, rest := splitTrailingRune(data)
			t.tail = append([]byte(nil), rest...)
			if len(complete) > 0 {
				t.pending = append(t.pending, Event{Type: EventTypeFragment, Text: string(complete)})
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if len(t.tail) > 0 {
				// Trailing bytes that never completed a rune pass through
				// as-is rather than being dropped.
				t.pending = append(t.pending, Event{Type: EventTypeFragment, Text: string(t.tail)})
				t.tail = nil
			}
			t.pending = append(t.pending, Event{Type: EventTypeTerminal, Reason: TerminalComplete})
			t.done = true
		default:
			t.done = true
			if ctx.Err() != nil {
				return Event{}, ctx.Err()
			}
			return Event{}, &TransportError{Op: "read stream", Err: err}
		}
	}
}

// Close releases the response body. Safe to call concurrently with Next; a
// pending read returns with an error once the body is closed.
func (t *ChunkedTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.body.Close()
	})
	return t.closeErr
}

// splitTrailingRune splits b so the first part ends on a complete UTF-8
// sequence. The second part is the prefix of a multi-byte rune whose
// remaining bytes have not arrived yet, to be retried on the next read.
func splitTrailingRune(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && len(b)-i < utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return b, nil
			}
			return b[:i], b[i:]
		}
	}
	return b, nil
}
