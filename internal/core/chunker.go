package core

import "fmt"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ChunkText splits text into windows of size runes, each starting size-overlap runes after
// the previous one. The last window may be shorter. A window that reaches the end of the
// text is always the last, so no chunk consists purely of overlap.
func ChunkText(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("size=%d overlap=%d: %w", size, overlap, ErrInvalidChunkWindow)
	}

	runes := []rune(text)
	chunks := []string{}
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
