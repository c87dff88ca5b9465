package store

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// ChunkText splits text into rune-safe windows of at most size runes, each
// overlapping the previous one by overlap runes so context is not lost at
// chunk boundaries.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap >= size {
		overlap = size - 1
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
