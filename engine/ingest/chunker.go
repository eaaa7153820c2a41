package ingest

const (
	// DefaultChunkSize is the window length in runes.
	DefaultChunkSize = 1000
	// DefaultOverlap is how many runes consecutive windows share.
	DefaultOverlap = 200
)

// ChunkText splits text into overlapping fixed-size windows. Each window is
// size runes long except the last, which runs to the end of the text; the
// next window starts size-overlap runes after the previous one. Windows are
// rune-aligned so multibyte characters never split. Empty input yields no
// chunks. Requires 0 <= overlap < size; out-of-range values are clamped to
// the nearest valid setting.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}
}
