package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type memDocs struct {
	mu        sync.Mutex
	docs      map[string]*model.Document
	createErr error
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[string]*model.Document{}}
}

func (m *memDocs) Create(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memDocs) GetByID(ctx context.Context, userID, docID string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok || doc.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocs) List(ctx context.Context, userID string, offset, limit uint) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Document
	for _, doc := range m.docs {
		if doc.UserID == userID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (m *memDocs) ListAll(ctx context.Context) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Document
	for _, doc := range m.docs {
		out = append(out, *doc)
	}
	return out, nil
}

func (m *memDocs) UpdateChunks(ctx context.Context, userID, docID string, chunks int, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return appErr.ErrNotFound
	}
	doc.Chunks = chunks
	return nil
}

func (m *memDocs) Delete(ctx context.Context, userID, docID string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.docs, docID)
	return nil
}

type memStore struct {
	files   map[string][]byte
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (s *memStore) Type() string { return "mem" }

func (s *memStore) Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.files[key] = data
	return nil
}

func (s *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.files[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	delete(s.files, key)
	return nil
}

type fakeIngester struct {
	ingested map[string]string
	removed  []string
	err      error
}

func newFakeIngester() *fakeIngester {
	return &fakeIngester{ingested: map[string]string{}}
}

func (f *fakeIngester) Ingest(ctx context.Context, ownerID, documentID, rawText string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.ingested[documentID] = rawText
	return len(strings.Fields(rawText)), nil
}

func (f *fakeIngester) RemoveDocument(ctx context.Context, documentID string) int {
	f.removed = append(f.removed, documentID)
	delete(f.ingested, documentID)
	return 1
}

func newTestService(maxBytes int64) (*DocumentService, *memDocs, *memStore, *fakeIngester) {
	docs := newMemDocs()
	store := newMemStore()
	ing := newFakeIngester()
	return NewDocumentService(docs, store, ing, maxBytes), docs, store, ing
}

func textUpload(userID, filename, body string) UploadInput {
	return UploadInput{
		UserID:      userID,
		ChatID:      "chat-1",
		Filename:    filename,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Reader:      strings.NewReader(body),
	}
}

func TestUpload_IndexesAndStores(t *testing.T) {
	svc, docs, store, ing := newTestService(1024)
	doc, err := svc.Upload(context.Background(), textUpload("u1", "notes.txt", "alpha beta gamma"))
	require.NoError(t, err)

	assert.Equal(t, "u1", doc.UserID)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, 3, doc.Chunks)
	assert.True(t, strings.HasSuffix(doc.StoreKey, ".txt"))
	assert.Equal(t, "alpha beta gamma", ing.ingested[doc.ID])
	assert.Equal(t, []byte("alpha beta gamma"), store.files[doc.StoreKey])

	got, err := docs.GetByID(context.Background(), "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
}

func TestUpload_StripsDirectoryFromFilename(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	doc, err := svc.Upload(context.Background(), textUpload("u1", "../../etc/notes.txt", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Filename)
}

func TestUpload_RejectsUnsupportedFormat(t *testing.T) {
	svc, _, store, _ := newTestService(0)
	_, err := svc.Upload(context.Background(), textUpload("u1", "image.png", "xx"))
	require.ErrorIs(t, err, loader.ErrUnsupportedFormat)
	assert.Empty(t, store.files)
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	svc, _, _, _ := newTestService(4)
	_, err := svc.Upload(context.Background(), textUpload("u1", "big.txt", "too large"))
	require.ErrorIs(t, err, appErr.ErrDocumentTooLarge)
}

func TestUpload_RejectsEmptyFilename(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	_, err := svc.Upload(context.Background(), textUpload("u1", "  ", "x"))
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestUpload_EmptyTextRecordedWithoutChunks(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	doc, err := svc.Upload(context.Background(), textUpload("u1", "blank.txt", "   \n "))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Chunks)
}

func TestUpload_IngestFailureRemovesFile(t *testing.T) {
	svc, docs, store, ing := newTestService(0)
	ing.err = errors.New("embedder down")
	_, err := svc.Upload(context.Background(), textUpload("u1", "a.txt", "hello world"))
	require.Error(t, err)
	assert.Empty(t, store.files)
	assert.Empty(t, docs.docs)
}

func TestUpload_CreateFailureRollsBack(t *testing.T) {
	svc, docs, store, ing := newTestService(0)
	docs.createErr = appErr.ErrConflict
	_, err := svc.Upload(context.Background(), textUpload("u1", "a.txt", "hello world"))
	require.ErrorIs(t, err, appErr.ErrConflict)
	assert.Empty(t, store.files)
	assert.Empty(t, ing.ingested)
	assert.Len(t, ing.removed, 1)
}

func TestUpload_StoreFailure(t *testing.T) {
	svc, _, store, ing := newTestService(0)
	store.saveErr = errors.New("disk full")
	_, err := svc.Upload(context.Background(), textUpload("u1", "a.txt", "hello"))
	require.Error(t, err)
	assert.Empty(t, ing.ingested)
}

func TestDelete_RemovesEverything(t *testing.T) {
	svc, docs, store, ing := newTestService(0)
	doc, err := svc.Upload(context.Background(), textUpload("u1", "a.txt", "hello world"))
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(context.Background(), "u2", doc.ID), appErr.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), "u1", doc.ID))
	assert.Empty(t, docs.docs)
	assert.Empty(t, store.files)
	assert.Equal(t, []string{doc.ID}, ing.removed)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	docs, err := svc.List(context.Background(), "nobody", 0, 20)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestGet_ScopedToOwner(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	doc, err := svc.Upload(context.Background(), textUpload("u1", "a.txt", "hello"))
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "u2", doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	got, err := svc.Get(context.Background(), "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)
}

func TestReindex_ReplaysStoredOriginals(t *testing.T) {
	svc, docs, store, _ := newTestService(0)
	a, err := svc.Upload(context.Background(), textUpload("u1", "a.txt", "one two"))
	require.NoError(t, err)
	b, err := svc.Upload(context.Background(), textUpload("u2", "b.md", "# Title\n\nthree four five"))
	require.NoError(t, err)
	delete(store.files, b.StoreKey)

	fresh := newFakeIngester()
	svc.ingester = fresh
	store.files[a.StoreKey] = []byte("one two three")

	indexed, chunks, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
	assert.Equal(t, 3, chunks)
	assert.Equal(t, "one two three", fresh.ingested[a.ID])
	assert.Equal(t, 3, docs.docs[a.ID].Chunks)
}

func TestReindex_CanceledContext(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	_, err := svc.Upload(context.Background(), textUpload("u1", "a.txt", "one"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = svc.Reindex(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStoreKey(t *testing.T) {
	assert.Equal(t, "abc.pdf", storeKey("abc", "Report.PDF"))
	assert.Len(t, newID(), 32)
}
