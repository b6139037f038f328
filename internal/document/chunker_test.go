package document

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(1000, 100)

	text := "a short document"
	chunks := c.Split(text)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want whole text", chunks[0])
	}
}

func TestSplit_ExactWindowSingleChunk(t *testing.T) {
	c := NewChunker(50, 10)

	text := strings.Repeat("x", 50)
	chunks := c.Split(text)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
}

func TestSplit_Empty(t *testing.T) {
	c := NewChunker(1000, 100)

	if got := c.Split(""); got != nil {
		t.Errorf("Split(\"\") = %v, want nil", got)
	}
	if got := c.Split("   \n\t  "); got != nil {
		t.Errorf("whitespace-only input yielded %d chunks, want 0", len(got))
	}
}

func TestSplit_OverlapExact(t *testing.T) {
	const window, overlap = 100, 20
	c := NewChunker(window, overlap)

	// Distinct characters so overlapping regions can be compared literally.
	var sb strings.Builder
	for i := 0; i < 505; i++ {
		sb.WriteRune(rune('a' + i%26))
	}
	text := sb.String()

	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		tail := string(prev[len(prev)-overlap:])
		head := string(cur[:overlap])
		if tail != head {
			t.Errorf("chunks %d/%d overlap mismatch: %q vs %q", i-1, i, tail, head)
		}
	}

	// Last chunk ends exactly at the end of the document.
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, last) {
		t.Error("last chunk does not end at the end of the text")
	}

	// Reconstructing from chunks (dropping each overlap) gives back the text.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		rebuilt.WriteString(string([]rune(chunks[i])[overlap:]))
	}
	if rebuilt.String() != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSplit_AllChunksWithinWindow(t *testing.T) {
	c := NewChunker(100, 30)

	chunks := c.Split(strings.Repeat("word ", 200))
	for i, ch := range chunks {
		if n := len([]rune(ch)); n > 100 {
			t.Errorf("chunk %d has %d chars, want <= 100", i, n)
		}
	}
}

func TestSplit_NineChunkScenario(t *testing.T) {
	// A ~3-page document: 9 windows at 1000 chars with 100 overlap covers
	// 1000 + 8*900 = 8200 characters.
	c := NewChunker(1000, 100)

	chunks := c.Split(strings.Repeat("z", 8200))
	if len(chunks) != 9 {
		t.Fatalf("got %d chunks, want 9", len(chunks))
	}
}

func TestSplit_MultibyteSafe(t *testing.T) {
	c := NewChunker(10, 2)

	text := strings.Repeat("héllo wörld ", 10)
	chunks := c.Split(text)
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		rebuilt.WriteString(string([]rune(chunks[i])[2:]))
	}
	if rebuilt.String() != text {
		t.Error("multibyte text was not split on rune boundaries")
	}
}

func TestNewChunker_ClampsDegenerateParams(t *testing.T) {
	// Construction never yields a chunker that cannot make progress.
	c := NewChunker(10, 25)
	chunks := c.Split(strings.Repeat("a", 100))
	if len(chunks) == 0 {
		t.Fatal("clamped chunker produced no chunks")
	}
}
