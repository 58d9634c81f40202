package rag

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
)

const (
	DefaultWindowSize = 400
	DefaultOverlap    = 50
)

var ErrConfig = errors.New("invalid chunker config")

// Chunker splits text into fixed-size word windows, each sharing `overlap`
// words with its predecessor.
type Chunker struct {
	windowSize int
	overlap    int
}

func NewChunker(windowSize, overlap int) (*Chunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", ErrConfig, windowSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrConfig, overlap)
	}
	if overlap >= windowSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than window size %d", ErrConfig, overlap, windowSize)
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}, nil
}

func (c *Chunker) WindowSize() int { return c.windowSize }

func (c *Chunker) Overlap() int { return c.overlap }

// Chunk returns a lazy sequence of chunks. Ranging over it again starts over.
func (c *Chunker) Chunk(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		words := strings.Fields(text)
		step := c.windowSize - c.overlap
		for start := 0; start < len(words); start += step {
			end := min(start+c.windowSize, len(words))
			if !yield(strings.Join(words[start:end], " ")) {
				return
			}
		}
	}
}

// Split validates the parameters and collects every chunk of text.
func Split(text string, windowSize, overlap int) ([]string, error) {
	c, err := NewChunker(windowSize, overlap)
	if err != nil {
		return nil, err
	}
	return slices.Collect(c.Chunk(text)), nil
}
