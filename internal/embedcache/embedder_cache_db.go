package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
	"go.uber.org/zap"
)

type CacheStore interface {
	GetMany(ctx context.Context, modelName string, contentHashes []string) (map[string][]float32, error)
	Save(ctx context.Context, items []*model.EmbeddingCache) error
}

// WrapDBCacheToEmbedder keeps vectors in a persistent table so restarts and
// re-uploads of the same text do not pay for the model again.
func WrapDBCacheToEmbedder(e ai.IEmbedder, store CacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store CacheStore
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	modelName := d.next.ModelName()
	hashes := make([]string, len(texts))
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), text)
	}
	cached, err := d.store.GetMany(ctx, modelName, hashes)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.Error(err))
		cached = nil
	}
	hits := 0
	for i, hash := range hashes {
		if v, ok := cached[hash]; ok && len(v) == d.next.Dimension() {
			out[i] = v
			hits++
		}
	}
	if hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.Int("hits", hits), zap.Int("total", len(texts)))
	}
	pending, slots := missing(texts, out)
	if len(pending) == 0 {
		return out, nil
	}
	res, err := d.next.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(res) != len(pending) {
		return nil, ai.ErrModelUnavailable
	}
	now := time.Now().Unix()
	items := make([]*model.EmbeddingCache, 0, len(pending))
	for i, text := range pending {
		positions := slots[text]
		for _, pos := range positions {
			out[pos] = cloneEmbedding(res[i])
		}
		items = append(items, &model.EmbeddingCache{
			ModelName:   modelName,
			ContentHash: hashes[positions[0]],
			Embedding:   res[i],
			Ctime:       now,
		})
	}
	if err := d.store.Save(ctx, items); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
	}
	return out, nil
}

func (d *dbEmbedder) Dimension() int {
	return d.next.Dimension()
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
