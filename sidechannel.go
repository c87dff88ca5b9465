package ragstream

import (
	"encoding/base64"
	"encoding/json"
)

// SourcesHeader is the response header that carries the base64-encoded JSON
// citation list on a turn-stream response. It is written exactly once, before
// the first body byte is flushed.
const SourcesHeader = "X-Sources"

// DecodeSources decodes the side-channel header value: base64, then a JSON
// array of citation records. The raw JSON is returned alongside the decoded
// records so it can travel on the event union without re-marshaling.
func DecodeSources(encoded string) ([]Citation, []byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, &DecodeError{What: "sources header", Err: err}
	}
	var cites []Citation
	if err := json.Unmarshal(raw, &cites); err != nil {
		return nil, nil, &DecodeError{What: "sources header", Err: err}
	}
	return cites, raw, nil
}

// EncodeSources is the producing-side counterpart of DecodeSources.
func EncodeSources(cites []Citation) (string, error) {
	raw, err := json.Marshal(cites)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
