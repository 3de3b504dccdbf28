package core

import (
	"context"
	"fmt"
	"strings"

	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/vectorstore"
)

const (
	DefaultRetrievalLimit      = 5
	DefaultSimilarityThreshold = 0.5 // Minimum cosine similarity for a chunk to count as relevant
)

type readyDocumentLister interface {
	ReadyDocumentIDs(ctx context.Context) ([]int64, error)
}

// RetrievalService finds the stored chunks to show the model for a query. Only chunks of
// ready documents are visible.
type RetrievalService struct {
	docs      readyDocumentLister
	chunks    ChunkStore
	embedder  Embedder
	mode      string
	threshold float64
	limit     int
	log       *logger.Logger
}

func NewRetrievalService(docs readyDocumentLister, chunks ChunkStore, embedder Embedder, cfg *config.Config, log *logger.Logger) *RetrievalService {
	s := &RetrievalService{
		docs:      docs,
		chunks:    chunks,
		embedder:  embedder,
		mode:      cfg.RetrievalMode,
		threshold: cfg.SimilarityThreshold,
		limit:     cfg.RetrievalLimit,
		log:       log.With("service", "RetrievalService"),
	}
	if s.limit <= 0 {
		s.limit = DefaultRetrievalLimit
	}
	return s
}

// Retrieve returns up to limit chunks, best match first. Vector ranking is tried first, then a
// case-insensitive substring match, then a sample in insertion order. The result is empty only
// when no ready document has chunks.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, limit int) ([]vectorstore.Chunk, error) {
	if limit <= 0 {
		limit = s.limit
	}

	docIDs, err := s.docs.ReadyDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready documents: %w", err)
	}
	if len(docIDs) == 0 {
		s.log.Debug("No ready documents to retrieve from")
		return []vectorstore.Chunk{}, nil
	}

	if s.mode != config.RetrievalModeText && s.embedder != nil {
		if hits := s.searchSimilar(ctx, query, docIDs, limit); len(hits) > 0 {
			return hits, nil
		}
	}

	if strings.TrimSpace(query) != "" {
		hits, err := s.chunks.SearchText(ctx, query, docIDs, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to search chunks by text: %w", err)
		}
		if len(hits) > 0 {
			s.log.Debug("Retrieved chunks by substring match", "count", len(hits))
			return hits, nil
		}
	}

	sample, err := s.chunks.Sample(ctx, docIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample chunks: %w", err)
	}
	s.log.Debug("No matching chunks, falling back to sample", "count", len(sample))
	if sample == nil {
		sample = []vectorstore.Chunk{}
	}
	return sample, nil
}

// searchSimilar returns the chunks above the similarity threshold. Provider or search failures
// are logged and yield nothing so the caller falls through to text search.
func (s *RetrievalService) searchSimilar(ctx context.Context, query string, docIDs []int64, limit int) []vectorstore.Chunk {
	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.Warn("Query embedding unavailable, falling back to text search", "error", err)
		return nil
	}

	scored, err := s.chunks.SearchSimilar(ctx, queryEmbedding, docIDs, limit)
	if err != nil {
		s.log.Warn("Similarity search failed, falling back to text search", "error", err)
		return nil
	}

	var hits []vectorstore.Chunk
	for _, sc := range scored {
		if sc.Score >= s.threshold {
			hits = append(hits, sc.Chunk)
		}
	}
	if len(hits) == 0 {
		s.log.Debug("No chunks above similarity threshold", "threshold", s.threshold)
	}
	return hits
}
