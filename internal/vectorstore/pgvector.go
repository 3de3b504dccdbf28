package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGVectorStorage stores embeddings in a pgvector column and ranks with the <=> cosine
// distance operator inside Postgres.
type PGVectorStorage struct {
	pool *pgxpool.Pool
}

var _ Storage = (*PGVectorStorage)(nil)

func NewPGVectorStorage(ctx context.Context, url string) (*PGVectorStorage, error) {
	// Railway hands out postgres:// URLs; pgx accepts both schemes.
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping vector database: %w", err)
	}

	s := &PGVectorStorage{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}
	return s, nil
}

func (s *PGVectorStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGVectorStorage) initSchema(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
            id BIGSERIAL PRIMARY KEY,
            document_id BIGINT NOT NULL,
            chunk_index INTEGER NOT NULL,
            content TEXT NOT NULL,
            embedding vector NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_document_id ON document_chunks (document_id)`,
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGVectorStorage) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d of document %d: %w", c.Index, c.DocumentID, ErrEmptyVector)
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range chunks {
			err := tx.QueryRow(ctx,
				"INSERT INTO document_chunks (document_id, chunk_index, content, embedding) VALUES ($1, $2, $3, $4::vector) RETURNING id",
				chunks[i].DocumentID, chunks[i].Index, chunks[i].Content, pgvector.NewVector(chunks[i].Embedding),
			).Scan(&chunks[i].ID)
			if err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", chunks[i].Index, err)
			}
		}
		return nil
	})
}

func (s *PGVectorStorage) DeleteByDocument(ctx context.Context, documentID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM document_chunks WHERE document_id = $1", documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGVectorStorage) CountByDocument(ctx context.Context, documentID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks WHERE document_id = $1", documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *PGVectorStorage) SearchSimilar(ctx context.Context, query []float32, documentIDs []int64, limit int) ([]ScoredChunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}

	rows, err := s.pool.Query(ctx, `
        SELECT id, document_id, chunk_index, content, 1 - (embedding <=> $1::vector) AS score
        FROM document_chunks
        WHERE document_id = ANY($2) AND vector_dims(embedding) = $3
        ORDER BY embedding <=> $1::vector, id
        LIMIT $4`,
		pgvector.NewVector(query), documentIDs, len(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.Index, &sc.Chunk.Content, &sc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

func (s *PGVectorStorage) SearchText(ctx context.Context, query string, documentIDs []int64, limit int) ([]Chunk, error) {
	query = strings.TrimSpace(query)
	if len(documentIDs) == 0 || query == "" {
		return nil, nil
	}
	return s.queryChunks(ctx,
		"SELECT id, document_id, chunk_index, content FROM document_chunks WHERE document_id = ANY($1) AND strpos(lower(content), lower($2)) > 0 ORDER BY id LIMIT $3",
		documentIDs, query, limit)
}

func (s *PGVectorStorage) Sample(ctx context.Context, documentIDs []int64, limit int) ([]Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	return s.queryChunks(ctx,
		"SELECT id, document_id, chunk_index, content FROM document_chunks WHERE document_id = ANY($1) ORDER BY id LIMIT $2",
		documentIDs, limit)
}

func (s *PGVectorStorage) queryChunks(ctx context.Context, query string, args ...any) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
