package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/docchat/internal/ai"
)

var (
	ErrInvalidTopK  = errors.New("top_k must be positive")
	ErrDimension    = errors.New("vector dimension mismatch")
	ErrInvalidIndex = errors.New("invalid index dimension")
	ErrNotEmpty     = errors.New("index is not empty")
)

type Option func(*Index)

func WithStore(s Store) Option {
	return func(idx *Index) {
		idx.store = s
	}
}

// Index is an append-only in-memory vector index searched by linear cosine
// scan. Readers work on an immutable snapshot and never wait for writers.
type Index struct {
	dim   int
	store Store

	mu      sync.Mutex
	flushMu sync.Mutex
	seq     uint64
	pending journal
	snap    atomic.Pointer[[]Entry]
}

func New(dimension int, opts ...Option) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, dimension)
	}
	idx := &Index{dim: dimension}
	for _, opt := range opts {
		opt(idx)
	}
	empty := []Entry{}
	idx.snap.Store(&empty)
	return idx, nil
}

func (idx *Index) Dimension() int {
	return idx.dim
}

func (idx *Index) Len() int {
	return len(*idx.snap.Load())
}

// Snapshot returns the entries visible right now in insertion order. The
// vectors are shared and must not be modified.
func (idx *Index) Snapshot() []Entry {
	return slices.Clone(*idx.snap.Load())
}

// Add embeds all item texts in one call and appends one entry per item.
// Either every item is appended or none is.
func (idx *Index) Add(ctx context.Context, embedder ai.IEmbedder, items []Item) ([]Entry, error) {
	if len(items) == 0 {
		return []Entry{}, nil
	}
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}
	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(items) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ai.ErrModelUnavailable, len(vecs), len(items))
	}
	for i, v := range vecs {
		if len(v) != idx.dim {
			return nil, fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimension, i, len(v), idx.dim)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	added := make([]Entry, len(items))
	for i, item := range items {
		idx.seq++
		added[i] = Entry{
			ID:     uuid.NewString(),
			Seq:    idx.seq,
			Text:   item.Text,
			Vector: vecs[i],
			Scope:  item.Scope,
			Ctime:  now,
		}
	}
	next := append(*idx.snap.Load(), added...)
	idx.snap.Store(&next)
	if idx.store != nil {
		idx.pending.adds = append(idx.pending.adds, added...)
	}
	return added, nil
}

// RemoveByScope drops every entry of the document and returns how many were
// removed.
func (idx *Index) RemoveByScope(documentID string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cur := *idx.snap.Load()
	next := make([]Entry, 0, len(cur))
	for _, e := range cur {
		if e.Scope.DocumentID != documentID {
			next = append(next, e)
		}
	}
	removed := len(cur) - len(next)
	if removed > 0 {
		idx.snap.Store(&next)
	}
	if idx.store != nil {
		idx.pending.recordRemove(documentID)
	}
	return removed
}

// Search embeds query and returns at most topK hits ordered by descending
// cosine similarity. An empty index returns no hits without embedding.
func (idx *Index) Search(ctx context.Context, embedder ai.IEmbedder, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	if idx.Len() == 0 {
		return []Hit{}, nil
	}
	vec, err := ai.EmbedOne(ctx, embedder, query)
	if err != nil {
		return nil, err
	}
	return idx.SearchVector(vec, topK)
}

func (idx *Index) SearchVector(vec []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	if len(vec) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimension, len(vec), idx.dim)
	}
	entries := *idx.snap.Load()
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, Hit{Entry: e, Score: CosineSimilarity(vec, e.Vector)})
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
