package document

import "strings"

// Chunker splits linear text into overlapping fixed-size character windows.
// Overlap keeps facts that straddle a window boundary retrievable at the
// cost of a larger index. Boundaries may cut mid-sentence; retrieval does
// not need semantic chunk edges.
type Chunker struct {
	window  int
	overlap int
}

// NewChunker creates a Chunker. The caller is expected to have validated
// 0 <= overlap < window at configuration time; out-of-range values are
// clamped here so a Chunker can never loop forever.
func NewChunker(window, overlap int) *Chunker {
	if window <= 0 {
		window = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		overlap = window - 1
	}
	return &Chunker{window: window, overlap: overlap}
}

// Split cuts text into chunks of at most window characters, consecutive
// chunks sharing exactly overlap characters. Text that fits in one window
// comes back as a single chunk; the last chunk always ends at the end of
// the text. Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.window {
		return []string{text}
	}

	step := c.window - c.overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + c.window
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		chunks = append(chunks, string(runes[start:end]))
	}
}
