package main

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/config"
)

// runReindex drops every persisted index entry and ingests the stored
// originals again with the configured embedder.
func runReindex(ctx context.Context, cfg *config.Config) error {
	logger := logutil.GetLogger(ctx)
	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.close()
	if !comps.persistent {
		return fmt.Errorf("index persistence is disabled, nothing to rebuild")
	}

	removed, err := comps.entryRepo.DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("clear index entries: %w", err)
	}
	logger.Info("index entries cleared", zap.Int64("count", removed))

	docs, chunks, err := comps.documents.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	if err := comps.index.Close(ctx); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	logger.Info("reindex done", zap.Int("documents", docs), zap.Int("chunks", chunks))
	return nil
}
