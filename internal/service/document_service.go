package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/repo"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, userID, docID string) (*model.Document, error)
	List(ctx context.Context, userID string, offset, limit uint) ([]model.Document, error)
	ListAll(ctx context.Context) ([]model.Document, error)
	UpdateChunks(ctx context.Context, userID, docID string, chunks int, mtime int64) error
	Delete(ctx context.Context, userID, docID string, mtime int64) error
}

type Ingester interface {
	Ingest(ctx context.Context, ownerID, documentID, rawText string) (int, error)
	RemoveDocument(ctx context.Context, documentID string) int
}

type UploadInput struct {
	UserID      string
	ChatID      string
	Filename    string
	ContentType string
	Size        int64
	Reader      io.ReadSeeker
}

// DocumentService owns the lifecycle of uploaded documents: the stored
// original, the metadata row and the index entries.
type DocumentService struct {
	docs     DocumentRepository
	store    filestore.Store
	ingester Ingester
	maxBytes int64
}

func NewDocumentService(docs DocumentRepository, store filestore.Store, ingester Ingester, maxBytes int64) *DocumentService {
	return &DocumentService{docs: docs, store: store, ingester: ingester, maxBytes: maxBytes}
}

// Upload extracts the text of the file, indexes it and records the
// document. On failure nothing stays behind.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		return nil, appErr.ErrInvalid
	}
	if !loader.Supported(filename) {
		return nil, fmt.Errorf("%w: %s", loader.ErrUnsupportedFormat, filename)
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return nil, appErr.ErrDocumentTooLarge
	}
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", in.UserID), zap.String("filename", filename))

	text, err := loader.Load(filename, in.Reader)
	if err != nil {
		return nil, err
	}
	if _, err := in.Reader.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	doc := &model.Document{
		ID:          newID(),
		UserID:      in.UserID,
		ChatID:      in.ChatID,
		Filename:    filename,
		ContentType: in.ContentType,
		Size:        in.Size,
		State:       repo.DocumentStateNormal,
		Ctime:       now,
		Mtime:       now,
	}
	doc.StoreKey = storeKey(doc.ID, filename)
	if err := s.store.Save(ctx, doc.StoreKey, in.Reader, in.Size); err != nil {
		logger.Error("save original failed", zap.Error(err))
		return nil, fmt.Errorf("save original: %w", err)
	}
	chunks, err := s.ingester.Ingest(ctx, in.UserID, doc.ID, text)
	if err != nil {
		s.discardFile(ctx, doc.StoreKey)
		return nil, err
	}
	doc.Chunks = chunks
	if err := s.docs.Create(ctx, doc); err != nil {
		s.ingester.RemoveDocument(ctx, doc.ID)
		s.discardFile(ctx, doc.StoreKey)
		return nil, err
	}
	logger.Info("document uploaded", zap.String("document_id", doc.ID), zap.Int("chunks", chunks))
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, userID, docID string) (*model.Document, error) {
	return s.docs.GetByID(ctx, userID, docID)
}

func (s *DocumentService) List(ctx context.Context, userID string, offset, limit uint) ([]model.Document, error) {
	docs, err := s.docs.List(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

// Delete removes the document record, its index entries and the stored
// original.
func (s *DocumentService) Delete(ctx context.Context, userID, docID string) error {
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, userID, docID, time.Now().Unix()); err != nil {
		return err
	}
	s.ingester.RemoveDocument(ctx, docID)
	s.discardFile(ctx, doc.StoreKey)
	return nil
}

// Reindex re-reads every stored original and ingests it again. Documents
// that fail are logged and skipped.
func (s *DocumentService) Reindex(ctx context.Context) (int, int, error) {
	docs, err := s.docs.ListAll(ctx)
	if err != nil {
		return 0, 0, err
	}
	logger := logutil.GetLogger(ctx)
	var indexed, total int
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return indexed, total, err
		}
		chunks, err := s.reindexOne(ctx, &doc)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return indexed, total, err
			}
			logger.Warn("reindex document failed", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		indexed++
		total += chunks
	}
	logger.Info("reindex finished", zap.Int("documents", indexed), zap.Int("chunks", total), zap.Int("skipped", len(docs)-indexed))
	return indexed, total, nil
}

func (s *DocumentService) reindexOne(ctx context.Context, doc *model.Document) (int, error) {
	rc, err := s.store.Open(ctx, doc.StoreKey)
	if err != nil {
		return 0, fmt.Errorf("open original: %w", err)
	}
	defer rc.Close()
	text, err := loader.Load(doc.Filename, rc)
	if err != nil {
		return 0, err
	}
	chunks, err := s.ingester.Ingest(ctx, doc.UserID, doc.ID, text)
	if err != nil {
		return 0, err
	}
	if chunks != doc.Chunks {
		if err := s.docs.UpdateChunks(ctx, doc.UserID, doc.ID, chunks, time.Now().Unix()); err != nil {
			return 0, err
		}
	}
	return chunks, nil
}

func (s *DocumentService) discardFile(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		logutil.GetLogger(ctx).Warn("delete original failed", zap.String("store_key", key), zap.Error(err))
	}
}
