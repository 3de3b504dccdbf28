package core

import (
	"context"
	"errors"
	"fmt"

	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
)

type DocumentService struct {
	docs     DocumentStore
	chunks   ChunkStore
	pipeline *IngestionPipeline
	log      *logger.Logger
}

func NewDocumentService(docs DocumentStore, chunks ChunkStore, pipeline *IngestionPipeline, log *logger.Logger) *DocumentService {
	return &DocumentService{
		docs:     docs,
		chunks:   chunks,
		pipeline: pipeline,
		log:      log.With("service", "DocumentService"),
	}
}

func (s *DocumentService) Upload(ctx context.Context, fileName string, data []byte) (*store.Document, error) {
	return s.pipeline.Ingest(ctx, fileName, data)
}

func (s *DocumentService) List(ctx context.Context, page store.Page) ([]store.Document, int, error) {
	docs, total, err := s.docs.ListDocuments(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

// Delete removes a document and all of its chunks. Chunks go first so none outlive the row.
func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get document %d: %w", id, err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	removed, err := s.chunks.DeleteByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of document %d: %w", id, err)
	}

	if err := s.docs.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}

	s.log.Info("Document deleted", "document_id", id, "file_name", doc.FileName, "chunks", removed)
	return nil
}
