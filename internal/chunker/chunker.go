// Package chunker splits normalized text into overlapping, boundary-aware
// chunks. Sizes are measured in characters (unicode code points).
package chunker

import (
	"errors"
	"fmt"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

var ErrInvalidConfig = errors.New("invalid chunker config")

type Chunker struct {
	size    int
	overlap int
}

// New validates the window configuration. overlap must be smaller than size,
// otherwise consecutive windows could stop advancing.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func MustNew(size, overlap int) *Chunker {
	c, err := New(size, overlap)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Chunker) Size() int {
	return c.size
}

func (c *Chunker) Overlap() int {
	return c.overlap
}

// Chunk returns the ordered chunk texts; position in the slice is the chunk index.
// Text that fits in one window (including empty text) yields a single chunk.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		if bp := lastBreak(runes[start:end]); bp > c.size/2 && bp+1 > c.overlap {
			end = start + bp + 1
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end - c.overlap
	}
	return chunks
}

// lastBreak returns the index of the last sentence terminator or newline in
// window, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
