package ragstream

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// statusLogCapacity bounds the rolling status log; oldest entries are evicted
// beyond it.
const statusLogCapacity = 50

// Result is the externally visible accumulated value of a session: the
// concatenated text for a turn-stream, or the merged analysis document plus
// the most recent status line and visual frame for an agent-run. A Result is
// a snapshot: it shares no memory with the live session and stays valid
// after the session terminates.
type Result struct {
	// Text is the concatenated fragment text of a turn-stream session.
	Text string `json:"text,omitempty"`
	// Citations is the decoded side-channel source list, if one arrived.
	Citations []Citation `json:"citations,omitempty"`
	// Analysis is the merged partial-analysis document of an agent-run
	// session.
	Analysis json.RawMessage `json:"analysis,omitempty"`
	// Statuses is the bounded rolling log of status lines, oldest first.
	Statuses []string `json:"statuses,omitempty"`
	// Frame is the most recent visual frame; prior frames are superseded.
	Frame string `json:"frame,omitempty"`
	// Err holds the last error message when the session failed.
	Err string `json:"err,omitempty"`
}

// Stats decodes the merged analysis document into its typed shape.
func (r Result) Stats() (ProfileStats, error) {
	var stats ProfileStats
	if len(r.Analysis) == 0 {
		return stats, nil
	}
	err := json.Unmarshal(r.Analysis, &stats)
	return stats, err
}

// accumulator merges accepted events into the session Result. It is not
// goroutine-safe on its own; the owning session serializes all access.
type accumulator struct {
	text      strings.Builder
	citations []Citation
	analysis  []byte
	statuses  []string
	frame     string
	logger    *slog.Logger
}

func newAccumulator(logger *slog.Logger) *accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &accumulator{logger: logger}
}

func (a *accumulator) appendText(s string) {
	a.text.WriteString(s)
}

// applyAnalysis merges an agent-run fragment into the analysis document. A
// malformed patch is reported but leaves the document untouched.
func (a *accumulator) applyAnalysis(patch []byte) error {
	merged, err := mergeAnalysis(a.analysis, patch, a.logger)
	if err != nil {
		return err
	}
	a.analysis = merged
	return nil
}

// applyCitations attaches the decoded side-channel payload. Later arrivals
// merge into the existing list rather than replace it, since the upstream may
// emit incremental updates.
func (a *accumulator) applyCitations(payload []byte) error {
	var cites []Citation
	if err := json.Unmarshal(payload, &cites); err != nil {
		return &DecodeError{What: "citation payload", Err: err}
	}
	a.citations = append(a.citations, cites...)
	return nil
}

func (a *accumulator) pushStatus(s string) {
	a.statuses = append(a.statuses, s)
	if len(a.statuses) > statusLogCapacity {
		a.statuses = a.statuses[len(a.statuses)-statusLogCapacity:]
	}
}

func (a *accumulator) setFrame(frame string) {
	a.frame = frame
}

// snapshot copies the accumulated state into a standalone Result.
func (a *accumulator) snapshot() Result {
	r := Result{
		Text:  a.text.String(),
		Frame: a.frame,
	}
	if len(a.citations) > 0 {
		r.Citations = append([]Citation(nil), a.citations...)
	}
	if len(a.analysis) > 0 {
		r.Analysis = append(json.RawMessage(nil), a.analysis...)
	}
	if len(a.statuses) > 0 {
		r.Statuses = append([]string(nil), a.statuses...)
	}
	return r
}
