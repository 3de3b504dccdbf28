package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"insurechat.io/rag-backend/internal/auth"
	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/core"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
	"insurechat.io/rag-backend/internal/vectorstore"
)

type fakeGenerator struct {
	fragments []string
	err       error
}

func (f fakeGenerator) GenerateStream(_ context.Context, _ string, yield func(string) error) error {
	for _, fragment := range f.fragments {
		if err := yield(fragment); err != nil {
			return err
		}
	}
	return f.err
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(context.Context, []byte) (string, error) {
	return "Hail damage to the roof is covered. The deductible is 500 dollars.", nil
}

type testServer struct {
	handler http.Handler
	meta    *store.Store
	chunks  *vectorstore.SQLiteStorage
	token   string
}

func newTestServer(t *testing.T, gen core.Generator, opts ...func(*config.Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.RetrievalMode = config.RetrievalModeText
	for _, opt := range opts {
		opt(&cfg)
	}

	meta, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	chunks, err := vectorstore.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { chunks.Close() })

	embedder := core.NewEmbeddingClient(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0}, nil
	})
	authService := core.NewAuthService(meta, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), log)
	_, err = authService.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	token, err := authService.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	pipeline := core.NewIngestionPipeline(meta, chunks, fakeExtractor{}, embedder, &cfg, log)
	retrieval := core.NewRetrievalService(meta, chunks, embedder, &cfg, log)
	chatService := core.NewChatService(meta, retrieval, core.NewResponseStreamer(gen, &cfg, log), log)
	documentService := core.NewDocumentService(meta, chunks, pipeline, log)

	h := NewAPIHandler(chatService, documentService, authService, &cfg, log)
	return &testServer{
		handler: NewRouter(h, cfg.FrontendURL, log),
		meta:    meta,
		chunks:  chunks,
		token:   token,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, contentType string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, fileName string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return ts.do(t, http.MethodPost, "/api/v1/admin/documents/upload", body.Bytes(), mw.FormDataContentType(), true)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sseData(body string) []string {
	var out []string
	for _, frame := range strings.Split(body, "\n\n") {
		if data, ok := strings.CutPrefix(frame, "data: "); ok {
			out = append(out, data)
		}
	}
	return out
}

func TestHealthAndRoot(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{})

	rec := ts.do(t, http.MethodGet, "/health", nil, "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])

	rec = ts.do(t, http.MethodGet, "/", nil, "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Insurance RAG Chatbot API", decode[messageResponse](t, rec).Message)
}

func TestChat_StreamsFramesThenDone(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{fragments: []string{"Hail damage ", "is \"covered\"."}})

	rec := ts.do(t, http.MethodPost, "/api/v1/chat", []byte(`{"message":"Is hail covered?"}`), "application/json", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := sseData(rec.Body.String())
	require.Len(t, frames, 3)
	assert.JSONEq(t, `{"content":"Hail damage "}`, frames[0])
	assert.JSONEq(t, `{"content":"is \"covered\"."}`, frames[1])
	assert.Equal(t, "[DONE]", frames[2])

	messages, total, err := ts.meta.ListChatMessages(context.Background(), store.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	// Newest first.
	assert.Equal(t, store.RoleAI, messages[0].Role)
	assert.Equal(t, "Hail damage is \"covered\".", messages[0].Content)
	assert.Equal(t, store.RoleUser, messages[1].Role)
	assert.Equal(t, messages[0].SessionID, messages[1].SessionID)
}

func TestChat_ProviderFailureStillTerminates(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{fragments: []string{"Partial"}, err: errors.New("quota exceeded")})

	rec := ts.do(t, http.MethodPost, "/api/v1/chat", []byte(`{"message":"Is hail covered?"}`), "application/json", false)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := sseData(rec.Body.String())
	require.Len(t, frames, 3)
	fallback, err := json.Marshal(chatFrame{Content: core.FallbackReply})
	require.NoError(t, err)
	assert.JSONEq(t, string(fallback), frames[1])
	assert.Equal(t, "[DONE]", frames[2])
}

func TestChat_BadRequests(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{})

	rec := ts.do(t, http.MethodPost, "/api/v1/chat", []byte(`{"message":"   "}`), "application/json", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message cannot be empty", decode[errorResponse](t, rec).Detail)

	rec = ts.do(t, http.MethodPost, "/api/v1/chat", []byte(`not json`), "application/json", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{})

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", []byte(`{"username":"admin","password":"admin123"}`), "application/json", false)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[TokenResponse](t, rec)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64((30 * time.Minute).Seconds()), resp.ExpiresIn)

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/login", []byte(`{"username":"admin","password":"nope"}`), "application/json", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Incorrect username or password", decode[errorResponse](t, rec).Detail)
}

func TestInitAdmin(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{})

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/init-admin", nil, "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Admin user already exists", decode[messageResponse](t, rec).Message)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{})

	for _, path := range []string{"/api/v1/admin/documents", "/api/v1/admin/chat-history"} {
		rec := ts.do(t, http.MethodGet, path, nil, "", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"), path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/documents", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Could not validate credentials", decode[errorResponse](t, rec).Detail)
}

func TestDocuments_UploadListDelete(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, fakeGenerator{})

	rec := ts.upload(t, "home-policy.pdf", []byte("%PDF-1.4\nstub"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	uploaded := decode[UploadResponse](t, rec)
	assert.NotZero(t, uploaded.DocumentID)

	doc, err := ts.meta.GetDocument(ctx, uploaded.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusReady, doc.Status)

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/documents", nil, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[PageResponse[store.Document]](t, rec)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 10, list.Size)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "home-policy.pdf", list.Items[0].FileName)

	path := fmt.Sprintf("/api/v1/admin/documents/%d", uploaded.DocumentID)
	rec = ts.do(t, http.MethodDelete, path, nil, "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	n, err := ts.chunks.CountByDocument(ctx, uploaded.DocumentID)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec = ts.do(t, http.MethodDelete, path, nil, "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document not found", decode[errorResponse](t, rec).Detail)

	rec = ts.do(t, http.MethodDelete, "/api/v1/admin/documents/abc", nil, "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocuments_RejectsNonPDF(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{})

	rec := ts.upload(t, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only PDF files are allowed", decode[errorResponse](t, rec).Detail)

	_, total, err := ts.meta.ListDocuments(context.Background(), store.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDocuments_RejectsOversizedUpload(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{}, func(cfg *config.Config) { cfg.MaxUploadBytes = 512 })

	data := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 4096)...)
	rec := ts.upload(t, "big.pdf", data)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	_, total, err := ts.meta.ListDocuments(context.Background(), store.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, fakeGenerator{})
	for i := 0; i < 25; i++ {
		_, err := ts.meta.CreateDocument(ctx, fmt.Sprintf("doc-%02d.pdf", i+1))
		require.NoError(t, err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/documents?page=2&size=10", nil, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	page2 := decode[PageResponse[store.Document]](t, rec)
	assert.Equal(t, 25, page2.Total)
	assert.Len(t, page2.Items, 10)
	assert.Equal(t, "doc-15.pdf", page2.Items[0].FileName)

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/documents?page=3&size=10", nil, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[PageResponse[store.Document]](t, rec).Items, 5)

	for _, q := range []string{"page=0", "size=0", "size=101", "page=x"} {
		rec = ts.do(t, http.MethodGet, "/api/v1/admin/documents?"+q, nil, "", true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestChatHistory(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{fragments: []string{"answer"}})

	rec := ts.do(t, http.MethodPost, "/api/v1/chat", []byte(`{"message":"question"}`), "application/json", false)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/chat-history?size=1", nil, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[PageResponse[store.ChatMessage]](t, rec)
	assert.Equal(t, 2, history.Total)
	require.Len(t, history.Items, 1)
	sessionID := history.Items[0].SessionID

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/chat-history/"+sessionID, nil, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	session := decode[[]store.ChatMessage](t, rec)
	require.Len(t, session, 2)
	assert.Equal(t, "question", session[0].Content)
	assert.Equal(t, "answer", session[1].Content)

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/chat-history/unknown", nil, "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, fakeGenerator{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
