package ragstream

import (
	"errors"
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// mergeAnalysis applies one partial-update patch onto the retained analysis
// document and returns the merged document.
//
// Merge policy: shallow, key by key. Scalar fields overwrite. Array fields
// overwrite wholesale, since the upstream always sends the full current
// array, never a delta, and appending would duplicate entries. Keys not in
// the known ProfileStats shape are dropped and logged; a junk key must not
// fail the session.
func mergeAnalysis(doc, patch []byte, logger *slog.Logger) ([]byte, error) {
	if !gjson.ValidBytes(patch) {
		return doc, &DecodeError{What: "analysis patch", Err: errors.New("invalid JSON")}
	}
	parsed := gjson.ParseBytes(patch)
	if !parsed.IsObject() {
		return doc, &DecodeError{What: "analysis patch", Err: errors.New("patch is not an object")}
	}
	if len(doc) == 0 {
		doc = []byte(`{}`)
	}
	var mergeErr error
	parsed.ForEach(func(key, value gjson.Result) bool {
		if !analysisKeys[key.Str] {
			logger.Warn("dropping unknown analysis key", "key", key.Str)
			return true
		}
		doc, mergeErr = sjson.SetRawBytes(doc, key.Str, []byte(value.Raw))
		return mergeErr == nil
	})
	return doc, mergeErr
}
