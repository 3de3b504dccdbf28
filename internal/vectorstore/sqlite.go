package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"insurechat.io/rag-backend/internal/store"
)

// SQLiteStorage keeps embeddings as JSON arrays and ranks them in process.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

func NewSQLiteStorage(dataSourceName string) (*SQLiteStorage, error) {
	db, _, err := store.OpenDB(dataSourceName)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStorage{db: db}
	if err = s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS document_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        document_id INTEGER NOT NULL,
        chunk_index INTEGER NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT NOT NULL -- JSON array of float32
    );

    CREATE INDEX IF NOT EXISTS idx_document_id ON document_chunks (document_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) InsertChunks(ctx context.Context, chunks []Chunk) (err error) {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO document_chunks (document_id, chunk_index, content, embedding_json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			return fmt.Errorf("chunk %d of document %d: %w", chunks[i].Index, chunks[i].DocumentID, ErrEmptyVector)
		}
		embeddingJSON, err := json.Marshal(chunks[i].Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		res, err := stmt.ExecContext(ctx, chunks[i].DocumentID, chunks[i].Index, chunks[i].Content, string(embeddingJSON))
		if err != nil {
			return fmt.Errorf("failed to execute chunk insert: %w", err)
		}
		chunks[i].ID, _ = res.LastInsertId()
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteByDocument(ctx context.Context, documentID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) CountByDocument(ctx context.Context, documentID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM document_chunks WHERE document_id = ?", documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) SearchSimilar(ctx context.Context, query []float32, documentIDs []int64, limit int) ([]ScoredChunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document_id, chunk_index, content, embedding_json FROM document_chunks WHERE document_id IN ("+store.Placeholders(len(documentIDs))+") ORDER BY id",
		idArgs(documentIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embeddingJSON string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil {
			// Unrankable; rankByCosine skips chunks without an embedding.
			c.Embedding = nil
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	return rankByCosine(query, chunks, limit), nil
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, documentIDs []int64, limit int) ([]Chunk, error) {
	query = strings.TrimSpace(query)
	if len(documentIDs) == 0 || query == "" {
		return nil, nil
	}

	args := append(idArgs(documentIDs), query, limit)
	return s.queryChunks(ctx,
		"SELECT id, document_id, chunk_index, content FROM document_chunks WHERE document_id IN ("+store.Placeholders(len(documentIDs))+
			") AND instr(lower(content), lower(?)) > 0 ORDER BY id LIMIT ?",
		args...)
}

func (s *SQLiteStorage) Sample(ctx context.Context, documentIDs []int64, limit int) ([]Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	args := append(idArgs(documentIDs), limit)
	return s.queryChunks(ctx,
		"SELECT id, document_id, chunk_index, content FROM document_chunks WHERE document_id IN ("+store.Placeholders(len(documentIDs))+
			") ORDER BY id LIMIT ?",
		args...)
}

func (s *SQLiteStorage) queryChunks(ctx context.Context, query string, args ...any) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return chunks, nil
}

func idArgs(ids []int64) []any {
	args := make([]any, 0, len(ids)+2)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
