package retrieval

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/index"
	"github.com/xxxsen/docchat/internal/rag"
	"go.uber.org/zap"
)

const (
	DefaultTopK      = 3
	DefaultOverFetch = 4
)

type Config struct {
	WindowSize int `json:"window_size"`
	Overlap    int `json:"overlap"`
	TopK       int `json:"top_k"`
	OverFetch  int `json:"over_fetch"`
}

func (c Config) withDefaults() Config {
	// An explicit window keeps its overlap, including 0.
	if c.WindowSize == 0 {
		c.WindowSize = rag.DefaultWindowSize
		if c.Overlap == 0 {
			c.Overlap = rag.DefaultOverlap
		}
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.OverFetch <= 0 {
		c.OverFetch = DefaultOverFetch
	}
	return c
}

// Service turns raw document text into scoped index entries and answers
// similarity queries restricted to one document.
type Service struct {
	idx      *index.Index
	embedder ai.IEmbedder
	chunker  *rag.Chunker
	cfg      Config
}

func New(idx *index.Index, embedder ai.IEmbedder, cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()
	chunker, err := rag.NewChunker(cfg.WindowSize, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	return &Service{idx: idx, embedder: embedder, chunker: chunker, cfg: cfg}, nil
}

// Ingest chunks rawText and adds every chunk under the given scope. It
// returns the number of chunks added.
func (s *Service) Ingest(ctx context.Context, ownerID, documentID, rawText string) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("owner_id", ownerID), zap.String("document_id", documentID))
	if strings.TrimSpace(rawText) == "" {
		logger.Info("no text to ingest")
		return 0, nil
	}
	scope := index.Scope{OwnerID: ownerID, DocumentID: documentID}
	var items []index.Item
	for chunk := range s.chunker.Chunk(rawText) {
		items = append(items, index.Item{Text: chunk, Scope: scope})
	}
	if _, err := s.idx.Add(ctx, s.embedder, items); err != nil {
		logger.Error("ingest document failed", zap.Error(err))
		return 0, err
	}
	logger.Info("document ingested", zap.Int("chunks", len(items)))
	return len(items), nil
}

// Retrieve returns up to topK chunk texts most similar to query. A non-empty
// documentID restricts results to that document.
func (s *Service) Retrieve(ctx context.Context, query, documentID string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	hits, err := s.idx.Search(ctx, s.embedder, query, topK*s.cfg.OverFetch)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, topK)
	for _, hit := range hits {
		if documentID != "" && hit.Scope.DocumentID != documentID {
			continue
		}
		out = append(out, hit.Text)
		if len(out) == topK {
			break
		}
	}
	logutil.GetLogger(ctx).Debug("retrieve finished",
		zap.String("document_id", documentID),
		zap.Int("candidates", len(hits)),
		zap.Int("returned", len(out)))
	return out, nil
}

func (s *Service) RemoveDocument(ctx context.Context, documentID string) int {
	removed := s.idx.RemoveByScope(documentID)
	logutil.GetLogger(ctx).Info("document removed from index", zap.String("document_id", documentID), zap.Int("entries", removed))
	return removed
}

func (s *Service) Config() Config {
	return s.cfg
}
