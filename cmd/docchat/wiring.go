package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/db"
	"github.com/xxxsen/docchat/internal/embedcache"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/index"
	"github.com/xxxsen/docchat/internal/repo"
	"github.com/xxxsen/docchat/internal/retrieval"
	"github.com/xxxsen/docchat/internal/service"
)

// components are shared by the server and the reindex command.
type components struct {
	db         *sql.DB
	docRepo    *repo.DocumentRepo
	entryRepo  *repo.IndexEntryRepo
	cacheRepo  *repo.EmbeddingCacheRepo
	embedder   ai.IEmbedder
	index      *index.Index
	retrieval  *retrieval.Service
	store      filestore.Store
	documents  *service.DocumentService
	persistent bool
}

func buildComponents(cfg *config.Config) (*components, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	c := &components{
		db:         conn,
		docRepo:    repo.NewDocumentRepo(conn),
		entryRepo:  repo.NewIndexEntryRepo(conn),
		cacheRepo:  repo.NewEmbeddingCacheRepo(conn),
		persistent: cfg.Index.PersistEnabled(),
	}
	if c.embedder, err = buildEmbedder(cfg.Embedding, c.cacheRepo); err != nil {
		_ = conn.Close()
		return nil, err
	}
	var opts []index.Option
	if c.persistent {
		opts = append(opts, index.WithStore(c.entryRepo))
	}
	if c.index, err = index.New(c.embedder.Dimension(), opts...); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	if c.retrieval, err = retrieval.New(c.index, c.embedder, retrieval.Config{
		WindowSize: cfg.Retrieval.WindowSize,
		Overlap:    cfg.Retrieval.Overlap,
		TopK:       cfg.Retrieval.TopK,
		OverFetch:  cfg.Retrieval.OverFetch,
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init retrieval: %w", err)
	}
	if c.store, err = filestore.New(cfg.FileStore); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}
	c.documents = service.NewDocumentService(c.docRepo, c.store, c.retrieval, cfg.UploadMaxBytes)
	logutil.GetLogger(context.Background()).Info("components ready",
		zap.String("embedding_model", c.embedder.ModelName()),
		zap.Int("dimension", c.embedder.Dimension()),
		zap.String("file_store", c.store.Type()),
		zap.Bool("persist_index", c.persistent),
	)
	return c, nil
}

// buildEmbedder layers the caches over the provider: memory first, then
// the database.
func buildEmbedder(cfg config.EmbeddingConfig, cacheRepo *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	embedder, err := ai.NewEmbedder(cfg.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	if cfg.Dimension > 0 && embedder.Dimension() != cfg.Dimension {
		return nil, fmt.Errorf("%w: provider dimension %d does not match configured %d",
			ai.ErrModelUnavailable, embedder.Dimension(), cfg.Dimension)
	}
	if cfg.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second), nil
}

func buildGenerator(cfg config.LLMConfig) ai.IGenerator {
	logger := logutil.GetLogger(context.Background())
	var entries []ai.GeneratorEntry
	for _, item := range cfg.Providers {
		gen, err := ai.NewGenerator(item.Provider, item)
		if err != nil {
			logger.Warn("skip llm provider", zap.String("name", item.Name), zap.String("provider", item.Provider), zap.Error(err))
			continue
		}
		name := item.Name
		if name == "" {
			name = item.Provider
		}
		entries = append(entries, ai.GeneratorEntry{Name: name, Generator: gen})
	}
	if len(entries) == 0 {
		logger.Warn("no llm provider configured, chat replies will fall back")
	}
	return ai.NewGroupGenerator(entries)
}

func (c *components) close() {
	if err := c.db.Close(); err != nil {
		logutil.GetLogger(context.Background()).Warn("close db failed", zap.Error(err))
	}
}
