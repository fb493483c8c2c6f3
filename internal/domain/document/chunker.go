package document

import (
	"fmt"
	"strings"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators are tried in priority order when looking for a cut point.
var separators = [][]rune{[]rune(". "), []rune(".\n"), []rune("\n\n"), []rune("\n")}

// Chunker splits text into overlapping, sentence-aligned segments.
// Sizes are measured in characters (runes), not bytes.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates parameters: size > 0 and 0 <= overlap < size.
func NewChunker(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Chunker{}, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return Chunker{size: size, overlap: overlap}, nil
}

// Split is deterministic: the same text and parameters always give the same chunks.
func (c Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+c.size, n)
		if end < n {
			end = c.cutPoint(runes, start, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// cutPoint moves end back to just after the last separator in the window,
// accepting it only at or past the window midpoint.
func (c Chunker) cutPoint(runes []rune, start, end int) int {
	window := runes[start:end]
	for _, sep := range separators {
		if idx := lastIndex(window, sep); idx >= c.size/2 {
			return start + idx + len(sep)
		}
	}
	return end
}

func lastIndex(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
