// Package vectorstore persists document chunks with their embeddings and answers
// similarity, substring and sampling queries over them.
package vectorstore

import (
	"context"
	"fmt"

	"insurechat.io/rag-backend/internal/store"
)

// Chunk is a bounded slice of a document's extracted text. Chunks are written once by
// ingestion and removed only together with their document.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a similarity search hit.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Storage is the chunk/embedding store. Every read takes the ids of the documents whose
// chunks are visible; an empty set matches nothing.
type Storage interface {
	// InsertChunks writes all chunks or none.
	InsertChunks(ctx context.Context, chunks []Chunk) error
	DeleteByDocument(ctx context.Context, documentID int64) (int64, error)
	CountByDocument(ctx context.Context, documentID int64) (int, error)
	SearchSimilar(ctx context.Context, query []float32, documentIDs []int64, limit int) ([]ScoredChunk, error)
	SearchText(ctx context.Context, query string, documentIDs []int64, limit int) ([]Chunk, error)
	Sample(ctx context.Context, documentIDs []int64, limit int) ([]Chunk, error)
	Close() error
}

// Open picks the backend from the URL: Postgres URLs get pgvector, anything else is a SQLite file.
func Open(ctx context.Context, url string) (Storage, error) {
	if store.IsPostgresURL(url) {
		return NewPGVectorStorage(ctx, url)
	}
	s, err := NewSQLiteStorage(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk store: %w", err)
	}
	return s, nil
}
