package ai

import (
	"context"
	"fmt"
)

const DefaultDimension = 384

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// IEmbedder maps texts to fixed-length vectors. The i-th output vector
// belongs to the i-th input text and every vector has Dimension() elements.
type IEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

func EmbedOne(ctx context.Context, e IEmbedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrModelUnavailable, len(vecs))
	}
	return vecs[0], nil
}

func checkVectors(vecs [][]float32, count, dim int) error {
	if len(vecs) != count {
		return fmt.Errorf("%w: expected %d vectors, got %d", ErrModelUnavailable, count, len(vecs))
	}
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrModelUnavailable, i, len(v), dim)
		}
	}
	return nil
}

func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}
