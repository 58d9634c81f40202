package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/chat"
	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/handler"
	"github.com/xxxsen/docchat/internal/job"
	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/schedule"
)

const shutdownTimeout = 30 * time.Second

func runServer(cfg *config.Config) error {
	logger := logutil.GetLogger(context.Background())
	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.close()

	if _, err := comps.index.Restore(context.Background()); err != nil {
		return fmt.Errorf("restore index: %w", err)
	}

	counter, err := chat.NewTokenCounter()
	if err != nil {
		logger.Warn("token counter unavailable, counting words instead", zap.Error(err))
		counter = chat.NewWordCounter()
	}
	chatService := chat.NewService(comps.retrieval, buildGenerator(cfg.LLM), counter, chat.Config{
		HistorySize:      cfg.Chat.HistorySize,
		HistoryTTL:       time.Duration(cfg.Chat.HistoryTTLSeconds) * time.Second,
		HistoryTurns:     cfg.Chat.HistoryTurns,
		MaxContextTokens: cfg.LLM.MaxContextTokens,
		TopK:             cfg.Retrieval.TopK,
		Timeout:          time.Duration(cfg.LLM.Timeout) * time.Second,
	})

	scheduler := schedule.NewCronScheduler()
	if comps.persistent {
		if err := scheduler.AddJob(job.NewIndexFlushJob(comps.index), cfg.Index.FlushCron); err != nil {
			return fmt.Errorf("schedule index flush: %w", err)
		}
	}
	if cfg.Embedding.DBCache {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(comps.cacheRepo, cfg.Embedding.CacheMaxAgeDays), cfg.Embedding.CacheCleanupCron); err != nil {
			return fmt.Errorf("schedule embedding cache cleanup: %w", err)
		}
	}

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(comps.documents, cfg.UploadMaxBytes),
		Chat:      handler.NewChatHandler(chatService, comps.documents),
		Retrieve:  handler.NewRetrieveHandler(comps.retrieval, comps.documents),
		Health:    handler.NewHealthHandler(comps.index, comps.embedder.ModelName()),
		RateLimit: time.Duration(cfg.RateLimitSeconds) * time.Second,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	scheduler.Stop()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := comps.index.Close(flushCtx); err != nil {
		logger.Error("flush index on shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
