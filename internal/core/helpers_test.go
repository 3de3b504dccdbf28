package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
	"insurechat.io/rag-backend/internal/vectorstore"
)

var errProvider = errors.New("provider unavailable")

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fn    func(text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn == nil {
		return []float32{1, 0, 0}, nil
	}
	return f.fn(text)
}

func failingEmbedder() *fakeEmbedder {
	return &fakeEmbedder{fn: func(string) ([]float32, error) {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, errProvider)
	}}
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(context.Context, []byte) (string, error) {
	return f.text, f.err
}

// fakeGenerator yields fragments in order, then returns err.
type fakeGenerator struct {
	fragments []string
	err       error
	prompts   atomic.Value
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, prompt string, yield func(string) error) error {
	f.prompts.Store(prompt)
	for _, fragment := range f.fragments {
		if err := yield(fragment); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeGenerator) lastPrompt() string {
	p, _ := f.prompts.Load().(string)
	return p
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 10
	return &cfg
}

type testStores struct {
	meta   *store.Store
	chunks *vectorstore.SQLiteStorage
}

func newTestStores(t *testing.T) testStores {
	t.Helper()
	meta, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	chunks, err := vectorstore.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { chunks.Close() })

	return testStores{meta: meta, chunks: chunks}
}

// seedReadyDocument stores a ready document whose chunks carry the given contents and a
// constant embedding.
func seedReadyDocument(t *testing.T, s testStores, name string, contents ...string) *store.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := s.meta.CreateDocument(ctx, name)
	require.NoError(t, err)

	chunks := make([]vectorstore.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = vectorstore.Chunk{DocumentID: doc.ID, Index: i, Content: c, Embedding: []float32{0, 1, 0}}
	}
	require.NoError(t, s.chunks.InsertChunks(ctx, chunks))
	require.NoError(t, s.meta.UpdateDocumentStatus(ctx, doc.ID, store.StatusReady))
	doc.Status = store.StatusReady
	return doc
}

// minimalPDF builds a one-page PDF that shows text in Helvetica. text must not contain
// parentheses or backslashes.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func nopLogger() *logger.Logger {
	return logger.NewNop()
}
