package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/chat"
	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/service"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"message"`
	Data json.RawMessage `json:"data"`
}

type fakeDocuments struct {
	mu      sync.Mutex
	docs    map[string]*model.Document
	uploads []service.UploadInput
	bodies  []string
	err     error
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{docs: map[string]*model.Document{}}
}

func (f *fakeDocuments) Upload(ctx context.Context, in service.UploadInput) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Reader)
	f.uploads = append(f.uploads, in)
	f.bodies = append(f.bodies, string(body))
	doc := &model.Document{ID: "doc-new", UserID: in.UserID, ChatID: in.ChatID, Filename: in.Filename, Size: in.Size, Chunks: 1}
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeDocuments) Get(ctx context.Context, userID, docID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocuments) List(ctx context.Context, userID string, offset, limit uint) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Document{}
	for _, doc := range f.docs {
		if doc.UserID == userID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeDocuments) Delete(ctx context.Context, userID, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.UserID != userID {
		return appErr.ErrNotFound
	}
	delete(f.docs, docID)
	return nil
}

type fakeChats struct {
	requests []chat.Request
	err      error
	cleared  []string
}

func (f *fakeChats) Chat(ctx context.Context, req chat.Request) (*chat.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &chat.Reply{ChatID: "chat-1", Reply: "echo: " + req.Message, Sources: []string{}}, nil
}

func (f *fakeChats) History(ownerID, chatID string) []chat.Turn {
	return []chat.Turn{{Role: chat.RoleUser, Content: ownerID + "/" + chatID}}
}

func (f *fakeChats) ClearHistory(ownerID, chatID string) {
	f.cleared = append(f.cleared, ownerID+"/"+chatID)
}

func (f *fakeChats) ListChats(ownerID string) []chat.Summary {
	return []chat.Summary{{ID: ownerID + "-chat", Title: "hello", Ctime: 100}}
}

type fakeRetriever struct {
	chunks []string
	err    error
	calls  int
	lastK  int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query, documentID string, topK int) ([]string, error) {
	f.calls++
	f.lastK = topK
	return f.chunks, f.err
}

type testEnv struct {
	router    *gin.Engine
	documents *fakeDocuments
	chats     *fakeChats
	retriever *fakeRetriever
}

func setupRouter(t *testing.T, maxBytes int64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		documents: newFakeDocuments(),
		chats:     &fakeChats{},
		retriever: &fakeRetriever{chunks: []string{"chunk one"}},
	}
	env.router = gin.New()
	api := env.router.Group("/api/v1")
	api.Use(middleware.RequestID())
	RegisterRoutes(api, RouterDeps{
		Documents: NewDocumentHandler(env.documents, maxBytes),
		Chat:      NewChatHandler(env.chats, env.documents),
		Retrieve:  NewRetrieveHandler(env.retriever, env.documents),
		Health:    NewHealthHandler(nil, "hashing-384"),
	})
	return env
}

func (env *testEnv) do(t *testing.T, req *http.Request, userID string) envelope {
	t.Helper()
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var out envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename, content, chatID string) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if chatID != "" {
		require.NoError(t, w.WriteField("chat_id", chatID))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	env := setupRouter(t, 0)
	out := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil), "")
	require.Equal(t, 0, out.Code)
	assert.Contains(t, string(out.Data), "hashing-384")
}

func TestUploadDocument(t *testing.T) {
	env := setupRouter(t, 1024)
	out := env.do(t, uploadRequest(t, "notes.txt", "hello world", "chat-9"), "alice")
	require.Equal(t, 0, out.Code)

	var doc model.Document
	require.NoError(t, json.Unmarshal(out.Data, &doc))
	assert.Equal(t, "doc-new", doc.ID)
	assert.Equal(t, "alice", doc.UserID)
	require.Len(t, env.documents.uploads, 1)
	assert.Equal(t, "chat-9", env.documents.uploads[0].ChatID)
	assert.Equal(t, "hello world", env.documents.bodies[0])
}

func TestUploadDocument_Anonymous(t *testing.T) {
	env := setupRouter(t, 0)
	out := env.do(t, uploadRequest(t, "notes.txt", "hello", ""), "")
	require.Equal(t, 0, out.Code)
	assert.Equal(t, middleware.AnonymousUserID, env.documents.uploads[0].UserID)
}

func TestUploadDocument_MissingFile(t *testing.T) {
	env := setupRouter(t, 0)
	out := env.do(t, jsonRequest(http.MethodPost, "/api/v1/documents", `{}`), "alice")
	assert.Equal(t, errcode.ErrInvalidFile, out.Code)
}

func TestUploadDocument_TooLarge(t *testing.T) {
	env := setupRouter(t, 4)
	out := env.do(t, uploadRequest(t, "notes.txt", "far too large", ""), "alice")
	assert.Equal(t, errcode.ErrDocumentTooLarge, out.Code)
	assert.Contains(t, out.Msg, "1KB")
	assert.Empty(t, env.documents.uploads)
}

func TestUploadDocument_ServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "unsupported", err: loader.ErrUnsupportedFormat, code: errcode.ErrInvalidFile},
		{name: "embedder", err: ai.ErrModelUnavailable, code: errcode.ErrAIUnavailable},
		{name: "conflict", err: appErr.ErrConflict, code: errcode.ErrConflict},
		{name: "other", err: io.ErrUnexpectedEOF, code: errcode.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, 0)
			env.documents.err = tt.err
			out := env.do(t, uploadRequest(t, "a.txt", "x", ""), "alice")
			assert.Equal(t, tt.code, out.Code)
		})
	}
}

func TestDocumentsListGetDelete(t *testing.T) {
	env := setupRouter(t, 0)
	env.documents.docs["d1"] = &model.Document{ID: "d1", UserID: "alice", Filename: "a.pdf"}
	env.documents.docs["d2"] = &model.Document{ID: "d2", UserID: "bob", Filename: "b.pdf"}

	out := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=500", nil), "alice")
	require.Equal(t, 0, out.Code)
	var page struct {
		Items []model.Document `json:"items"`
		Limit uint             `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "d1", page.Items[0].ID)
	assert.Equal(t, uint(maxPageLimit), page.Limit)

	out = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/d2", nil), "alice")
	assert.Equal(t, errcode.ErrNotFound, out.Code)

	out = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/d1", nil), "alice")
	require.Equal(t, 0, out.Code)
	assert.NotContains(t, env.documents.docs, "d1")

	out = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/d1", nil), "alice")
	assert.Equal(t, errcode.ErrNotFound, out.Code)
}

func TestChat(t *testing.T) {
	env := setupRouter(t, 0)
	env.documents.docs["d1"] = &model.Document{ID: "d1", UserID: "alice"}

	out := env.do(t, jsonRequest(http.MethodPost, "/api/v1/chat", `{"message":"hi","document_id":"d1"}`), "alice")
	require.Equal(t, 0, out.Code)
	var reply chat.Reply
	require.NoError(t, json.Unmarshal(out.Data, &reply))
	assert.Equal(t, "echo: hi", reply.Reply)
	require.Len(t, env.chats.requests, 1)
	assert.Equal(t, "alice", env.chats.requests[0].OwnerID)
	assert.Equal(t, "d1", env.chats.requests[0].DocumentID)
}

func TestChat_OtherUsersDocument(t *testing.T) {
	env := setupRouter(t, 0)
	env.documents.docs["d1"] = &model.Document{ID: "d1", UserID: "alice"}
	out := env.do(t, jsonRequest(http.MethodPost, "/api/v1/chat", `{"message":"hi","document_id":"d1"}`), "mallory")
	assert.Equal(t, errcode.ErrNotFound, out.Code)
	assert.Empty(t, env.chats.requests)
}

func TestChat_InvalidBody(t *testing.T) {
	env := setupRouter(t, 0)
	out := env.do(t, jsonRequest(http.MethodPost, "/api/v1/chat", `{"message":"   "}`), "alice")
	assert.Equal(t, errcode.ErrInvalid, out.Code)
	out = env.do(t, jsonRequest(http.MethodPost, "/api/v1/chat", `not json`), "alice")
	assert.Equal(t, errcode.ErrInvalid, out.Code)
}

func TestChatHistory(t *testing.T) {
	env := setupRouter(t, 0)
	out := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/chat/c1/history", nil), "alice")
	require.Equal(t, 0, out.Code)
	assert.Contains(t, string(out.Data), "alice/c1")

	out = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/chat/c1/history", nil), "alice")
	require.Equal(t, 0, out.Code)
	assert.Equal(t, []string{"alice/c1"}, env.chats.cleared)
}

func TestListChats(t *testing.T) {
	env := setupRouter(t, 0)
	out := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil), "alice")
	require.Equal(t, 0, out.Code)
	var data struct {
		Chats []chat.Summary `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	assert.Equal(t, []chat.Summary{{ID: "alice-chat", Title: "hello", Ctime: 100}}, data.Chats)

	out = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil), "")
	require.Equal(t, 0, out.Code)
	assert.Contains(t, string(out.Data), middleware.AnonymousUserID+"-chat")
}

func TestRetrieve(t *testing.T) {
	env := setupRouter(t, 0)
	env.documents.docs["d1"] = &model.Document{ID: "d1", UserID: "alice"}

	out := env.do(t, jsonRequest(http.MethodPost, "/api/v1/retrieve", `{"query":"q","document_id":"d1","top_k":2}`), "alice")
	require.Equal(t, 0, out.Code)
	var data struct {
		Chunks []string `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	assert.Equal(t, []string{"chunk one"}, data.Chunks)
	assert.Equal(t, 2, env.retriever.lastK)

	out = env.do(t, jsonRequest(http.MethodPost, "/api/v1/retrieve", `{"query":"q","document_id":"d1"}`), "bob")
	assert.Equal(t, errcode.ErrNotFound, out.Code)
	assert.Equal(t, 1, env.retriever.calls)

	out = env.do(t, jsonRequest(http.MethodPost, "/api/v1/retrieve", `{"query":"","document_id":"d1"}`), "alice")
	assert.Equal(t, errcode.ErrInvalid, out.Code)

	env.retriever.err = ai.ErrModelUnavailable
	out = env.do(t, jsonRequest(http.MethodPost, "/api/v1/retrieve", `{"query":"q","document_id":"d1"}`), "alice")
	assert.Equal(t, errcode.ErrAIUnavailable, out.Code)
}

func TestFormatUploadLimit(t *testing.T) {
	assert.Equal(t, "no limit", formatUploadLimit(0))
	assert.Equal(t, "1KB", formatUploadLimit(4))
	assert.Equal(t, "20MB", formatUploadLimit(20*1024*1024))
	assert.Equal(t, "2MB", formatUploadLimit(1024*1024+1))
}
