package chunking

import (
	"strings"
	"unicode"
)

// Splitter cuts extracted text into overlapping rune windows. When a window
// would end mid-word it snaps back to the nearest whitespace, so clinical
// sentences are not split inside dosage or medication tokens.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/(s.ChunkSize-s.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToBoundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = start + s.ChunkSize - s.Overlap
		}
		start = next
	}
	return out
}

// snapToBoundary walks back from end looking for whitespace, at most a fifth
// of the window. Dense text without spaces keeps the hard cut.
func snapToBoundary(runes []rune, start, end int) int {
	limit := end - (end-start)/5
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
