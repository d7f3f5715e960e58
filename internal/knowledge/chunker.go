// Package knowledge turns documents and company records into the text chunks
// stored in the knowledge base.
package knowledge

import "strings"

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// ChunkText splits text into windows of at most size characters. A window is
// cut back to its last '.' or newline when that falls past the middle of the
// window, and the next window starts overlap characters before the cut.
// Chunks are trimmed and empty ones are dropped.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			window := string(runes[start:end])
			cut := max(strings.LastIndex(window, "."), strings.LastIndex(window, "\n"))
			if cut >= 0 {
				// cut is a byte offset; convert back to runes.
				cutRunes := len([]rune(window[:cut]))
				if float64(cutRunes) > float64(size)*0.5 {
					end = start + cutRunes + 1
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
