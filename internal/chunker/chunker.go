// Package chunker splits statute text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOptions is returned when size and overlap do not describe a valid window.
var ErrInvalidOptions = errors.New("invalid chunk options")

// Chunk is a contiguous slice of a source document.
// Offsets and lengths are counted in characters (Unicode code points), not bytes.
type Chunk struct {
	Index      int    // Window ordinal within the source (0, 1, 2...)
	Offset     int    // Character index of the first character in the source
	Text       string // Window content, untrimmed
	SourceFile string // Source identifier, e.g. "民法典/合同编.txt"
	Category   string // Optional label, e.g. "民法"
}

// Len returns the chunk length in characters.
func (c Chunk) Len() int {
	return len([]rune(c.Text))
}

// Chunker splits text with a sliding window of Size characters stepping by Size-Overlap.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. size must be positive and 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidOptions, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidOptions, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window width in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into windows. Windows that are blank after trimming are dropped,
// but keep their ordinal so Index always equals the window position.
// The result is a pure function of the inputs.
func (c *Chunker) Split(text, sourceFile, category string) []Chunk {
	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []Chunk
	for index, start := 0, 0; start < len(runes); index, start = index+1, start+step {
		end := min(start+c.size, len(runes))
		window := string(runes[start:end])

		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, Chunk{
				Index:      index,
				Offset:     start,
				Text:       window,
				SourceFile: sourceFile,
				Category:   category,
			})
		}

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// Join reassembles consecutive chunks of one source by dropping each chunk's
// overlap with its predecessor. Useful for verifying a split.
func Join(chunks []Chunk) string {
	var b strings.Builder
	covered := 0
	for _, chunk := range chunks {
		runes := []rune(chunk.Text)
		skip := covered - chunk.Offset
		if skip < 0 {
			skip = 0
		}
		if skip < len(runes) {
			b.WriteString(string(runes[skip:]))
		}
		covered = max(covered, chunk.Offset+len(runes))
	}
	return b.String()
}
