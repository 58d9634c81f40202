package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const bigramWeight = 0.5

type hashingConfig struct {
	Dimension int `json:"dimension"`
}

// hashingEmbedder is a local sentence embedder: lowercased word unigrams and
// bigrams are hashed into signed buckets and the result is L2-normalized.
// The output for a given text never changes.
type hashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dimension int) (IEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrModelUnavailable, dimension)
	}
	return &hashingEmbedder{dim: dimension}, nil
}

func (e *hashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, e.vector(text))
	}
	return out, nil
}

func (e *hashingEmbedder) Dimension() int {
	return e.dim
}

func (e *hashingEmbedder) ModelName() string {
	return fmt.Sprintf("hashing-%d", e.dim)
}

func (e *hashingEmbedder) vector(text string) []float32 {
	acc := make([]float64, e.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.accumulate(acc, "u:"+tok, 1)
		if i > 0 {
			e.accumulate(acc, "b:"+tokens[i-1]+" "+tok, bigramWeight)
		}
	}
	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *hashingEmbedder) accumulate(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func createHashingEmbedFactory(args interface{}) (IEmbedder, error) {
	cfg := &hashingConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	return NewHashingEmbedder(cfg.Dimension)
}

func init() {
	RegisterEmbed("hashing", createHashingEmbedFactory)
}
