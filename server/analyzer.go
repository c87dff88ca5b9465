package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ragstream "github.com/TharushaKula/RAG-agent-sub001"
)

// EmitFunc delivers one server event onto the duplex channel. Implementations
// block while the session is paused, so an analyzer that only emits through
// it needs no pause handling of its own.
type EmitFunc func(event string, data any) error

// Analyzer produces an agent-run: status lines and partial analysis patches
// for a target URL, emitted until it returns. Returning nil yields a complete
// event, an error yields an error event. Implementations must return promptly
// once ctx is done.
type Analyzer interface {
	Analyze(ctx context.Context, target string, emit EmitFunc) error
}

const analyzerWriteTimeout = 10 * time.Second

// AnalyzerHandler serves the duplex protocol: the client sends
// start-analysis/pause/resume/stop commands, the server pushes status, frame
// and analysis events until a terminal event. Commands are fire-and-forget;
// nothing is acknowledged.
type AnalyzerHandler struct {
	Analyzer Analyzer
	Logger   *slog.Logger
	Upgrader websocket.Upgrader
}

func (h *AnalyzerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &analyzerConn{
		conn:     conn,
		analyzer: h.Analyzer,
		logger:   logger,
	}
	c.serve(r.Context())
}

// analyzerConn is one duplex connection: a read loop dispatching commands and
// at most one analysis run at a time.
type analyzerConn struct {
	conn     *websocket.Conn
	analyzer Analyzer
	logger   *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	gate    *pauseGate
}

func (c *analyzerConn) serve(ctx context.Context) {
	defer func() {
		c.stopRun()
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("analyzer channel read failed", "error", err)
			}
			return
		}
		var msg ragstream.WireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("skipping malformed command", "error", err)
			continue
		}
		switch msg.Event {
		case ragstream.WireStartAnalysis:
			var payload ragstream.StartAnalysisPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.URL == "" {
				c.writeEvent(ragstream.WireError, "start-analysis requires a url")
				continue
			}
			c.startRun(ctx, payload.URL)
		case ragstream.WirePause:
			c.mu.Lock()
			if c.gate != nil {
				c.gate.Pause()
			}
			c.mu.Unlock()
		case ragstream.WireResume:
			c.mu.Lock()
			if c.gate != nil {
				c.gate.Resume()
			}
			c.mu.Unlock()
		case ragstream.WireStop:
			c.stopRun()
		default:
			c.logger.Warn("skipping unknown command", "event", msg.Event)
		}
	}
}

func (c *analyzerConn) startRun(ctx context.Context, target string) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		// The one active run is unaffected.
		c.writeEvent(ragstream.WireError, "analysis already running")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	gate := newPauseGate()
	c.running = true
	c.cancel = cancel
	c.gate = gate
	c.mu.Unlock()

	emit := func(event string, data any) error {
		if err := gate.Wait(runCtx); err != nil {
			return err
		}
		return c.writeEvent(event, data)
	}

	go func() {
		err := c.analyzer.Analyze(runCtx, target, emit)
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.gate = nil
		c.mu.Unlock()

		// After a stop the client drops everything anyway; stay quiet.
		if runCtx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Error("analysis failed", "target", target, "error", err)
			c.writeEvent(ragstream.WireError, err.Error())
			return
		}
		c.writeEvent(ragstream.WireComplete, nil)
	}()
}

func (c *analyzerConn) stopRun() {
	c.mu.Lock()
	cancel := c.cancel
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		// A paused run must still observe the cancellation.
		gate.Resume()
	}
	if cancel != nil {
		cancel()
	}
}

func (c *analyzerConn) writeEvent(event string, data any) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(analyzerWriteTimeout))
	return c.conn.WriteJSON(ragstream.WireMessage{Event: event, Data: raw})
}

// pauseGate blocks emitters while the run is paused. Pause and Resume are
// idempotent.
type pauseGate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newPauseGate() *pauseGate {
	return &pauseGate{}
}

func (g *pauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resume = make(chan struct{})
	}
}

func (g *pauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

// Wait returns once the gate is open or ctx is done.
func (g *pauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resume
	paused := g.paused
	g.mu.Unlock()
	if !paused {
		return ctx.Err()
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
