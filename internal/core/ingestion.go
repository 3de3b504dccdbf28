package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
	"insurechat.io/rag-backend/internal/vectorstore"
)

var pdfMagic = []byte("%PDF-")

// Readers accept the header anywhere in the first KiB.
const pdfHeaderWindow = 1024

var allowedTransitions = map[store.DocumentStatus][]store.DocumentStatus{
	store.StatusPending:  {store.StatusIndexing},
	store.StatusIndexing: {store.StatusReady, store.StatusError},
}

// IngestionPipeline turns an uploaded PDF into ready, embedded chunks.
type IngestionPipeline struct {
	docs      DocumentStore
	chunks    ChunkStore
	extractor TextExtractor
	embedder  Embedder
	size      int
	overlap   int
	log       *logger.Logger
}

func NewIngestionPipeline(docs DocumentStore, chunks ChunkStore, extractor TextExtractor, embedder Embedder, cfg *config.Config, log *logger.Logger) *IngestionPipeline {
	return &IngestionPipeline{
		docs:      docs,
		chunks:    chunks,
		extractor: extractor,
		embedder:  embedder,
		size:      cfg.ChunkSize,
		overlap:   cfg.ChunkOverlap,
		log:       log.With("service", "IngestionPipeline"),
	}
}

// Ingest validates, registers and indexes one document. Format errors wrap ErrUnsupportedFormat
// and leave nothing behind. Any later failure leaves the returned document in status error.
func (p *IngestionPipeline) Ingest(ctx context.Context, fileName string, data []byte) (*store.Document, error) {
	if err := validatePDF(fileName, data); err != nil {
		return nil, err
	}

	doc := &store.Document{FileName: fileName, Status: store.StatusPending}
	if err := p.transition(ctx, doc, store.StatusIndexing); err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}
	log := p.log.With("document_id", doc.ID, "file_name", fileName)

	n, err := p.index(ctx, doc, data)
	if err == nil {
		err = p.transition(ctx, doc, store.StatusReady)
	}
	if err != nil {
		log.Error("Ingestion failed", "error", err)
		// The terminal status is written even if the caller has gone away.
		if terr := p.transition(context.WithoutCancel(ctx), doc, store.StatusError); terr != nil {
			log.Error("Failed to mark document as errored", "error", terr)
			return doc, errors.Join(err, terr)
		}
		return doc, err
	}

	log.Info("Document indexed", "chunks", n)
	return doc, nil
}

// IngestFile ingests a PDF from disk.
func (p *IngestionPipeline) IngestFile(ctx context.Context, path string) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.Ingest(ctx, filepath.Base(path), data)
}

func (p *IngestionPipeline) index(ctx context.Context, doc *store.Document, data []byte) (int, error) {
	text, err := p.extractor.Extract(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("failed to extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrNoText
	}

	pieces, err := ChunkText(text, p.size, p.overlap)
	if err != nil {
		return 0, err
	}

	chunks := make([]vectorstore.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		embedding, err := p.embedder.Embed(ctx, piece)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d/%d: %w", i+1, len(pieces), err)
		}
		chunks = append(chunks, vectorstore.Chunk{
			DocumentID: doc.ID,
			Index:      i,
			Content:    piece,
			Embedding:  embedding,
		})
	}

	if err := p.chunks.InsertChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	return len(chunks), nil
}

// transition is the only place a document's status changes. Leaving pending creates the row.
func (p *IngestionPipeline) transition(ctx context.Context, doc *store.Document, to store.DocumentStatus) error {
	if !slices.Contains(allowedTransitions[doc.Status], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doc.Status, to)
	}

	if doc.Status == store.StatusPending {
		created, err := p.docs.CreateDocument(ctx, doc.FileName)
		if err != nil {
			return err
		}
		*doc = *created
		return nil
	}

	if err := p.docs.UpdateDocumentStatus(ctx, doc.ID, to); err != nil {
		return err
	}
	doc.Status = to
	return nil
}

func validatePDF(fileName string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return fmt.Errorf("%q: %w", fileName, ErrUnsupportedFormat)
	}
	header := data[:min(len(data), pdfHeaderWindow)]
	if !bytes.Contains(header, pdfMagic) {
		return fmt.Errorf("%q is not a PDF: %w", fileName, ErrUnsupportedFormat)
	}
	return nil
}
