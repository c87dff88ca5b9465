package ragstream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"testing"
)

func TestMergeAnalysis(t *testing.T) {
	logger := slog.Default()

	t.Run("later scalar wins", func(t *testing.T) {
		doc, err := mergeAnalysis(nil, []byte(`{"totalCommits":5}`), logger)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
		doc, err = mergeAnalysis(doc, []byte(`{"totalCommits":12,"techFocus":"Go"}`), logger)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
		var stats ProfileStats
		if err := json.Unmarshal(doc, &stats); err != nil {
			t.Fatalf("decode merged doc: %v", err)
		}
		if stats.TotalCommits != 12 {
			t.Errorf("expected totalCommits 12, got %d", stats.TotalCommits)
		}
		if stats.TechFocus != "Go" {
			t.Errorf("expected techFocus Go, got %q", stats.TechFocus)
		}
	})

	t.Run("arrays overwrite wholesale", func(t *testing.T) {
		doc, err := mergeAnalysis(nil, []byte(`{"insights":["a","b"]}`), logger)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
		doc, err = mergeAnalysis(doc, []byte(`{"insights":["c"]}`), logger)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
		var stats ProfileStats
		if err := json.Unmarshal(doc, &stats); err != nil {
			t.Fatalf("decode merged doc: %v", err)
		}
		if !reflect.DeepEqual(stats.Insights, []string{"c"}) {
			t.Errorf("expected insights replaced, got %v", stats.Insights)
		}
	})

	t.Run("unknown keys dropped", func(t *testing.T) {
		doc, err := mergeAnalysis(nil, []byte(`{"bogus":1,"repos":3}`), logger)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(doc, &m); err != nil {
			t.Fatalf("decode merged doc: %v", err)
		}
		if _, ok := m["bogus"]; ok {
			t.Error("unknown key survived the merge")
		}
		if m["repos"] != float64(3) {
			t.Errorf("known key lost: %v", m["repos"])
		}
	})

	t.Run("invalid patch is a decode error", func(t *testing.T) {
		doc, err := mergeAnalysis([]byte(`{"repos":3}`), []byte(`{broken`), logger)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if string(doc) != `{"repos":3}` {
			t.Errorf("failed patch touched the document: %s", doc)
		}
	})

	t.Run("non-object patch is a decode error", func(t *testing.T) {
		_, err := mergeAnalysis(nil, []byte(`[1,2]`), logger)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	})
}

// Applying patches one by one must produce the same document as applying
// them in one combined batch.
func TestMergeAssociativity(t *testing.T) {
	patches := [][]byte{
		[]byte(`{"repos":7}`),
		[]byte(`{"totalCommits":100,"insights":["uses Go"]}`),
		[]byte(`{"totalCommits":120,"currentStreak":4}`),
		[]byte(`{"insights":["uses Go","active reviewer"],"isExact":true}`),
	}
	logger := slog.Default()

	var oneByOne []byte
	var err error
	for _, p := range patches {
		oneByOne, err = mergeAnalysis(oneByOne, p, logger)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
	}

	var batchPatch []byte
	for _, p := range patches {
		batchPatch, err = mergeAnalysis(batchPatch, p, logger)
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
	}
	batch, err := mergeAnalysis(nil, batchPatch, logger)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	var a, b map[string]any
	if err := json.Unmarshal(oneByOne, &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(batch, &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("one-by-one %v != batch %v", a, b)
	}
}

func TestAnalysisKeysDerivedFromSchema(t *testing.T) {
	for _, key := range []string{"totalCommits", "techFocus", "insights", "yearlyContributions", "isExact"} {
		if !analysisKeys[key] {
			t.Errorf("expected %q in the known key set", key)
		}
	}
	if analysisKeys["password"] {
		t.Error("unexpected key in the known key set")
	}
}
