package main

import (
	"context"
	"fmt"

	"insurechat.io/rag-backend/internal/auth"
	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/core"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
	"insurechat.io/rag-backend/internal/vectorstore"
)

// app holds the process-wide dependencies. Provider-backed services are nil unless
// bootstrap was asked for them.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	meta   *store.Store
	chunks vectorstore.Storage
	llm    *core.LLMService

	authService     *core.AuthService
	chatService     *core.ChatService
	documentService *core.DocumentService
	pipeline        *core.IngestionPipeline
}

func bootstrap(ctx context.Context, withProvider bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}

	a.meta, err = store.Open(cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info("Metadata store ready", "dialect", a.meta.Dialect())

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	a.authService = core.NewAuthService(a.meta, tokens, log)

	if !withProvider {
		return a, nil
	}

	a.chunks, err = vectorstore.Open(ctx, cfg.VectorDatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	a.llm, err = core.NewLLMService(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	embedder := core.NewEmbeddingClient(a.llm.EmbedRaw,
		core.WithRateLimit(cfg.EmbedRatePerSecond),
		core.WithMaxRetries(cfg.EmbedMaxRetries),
	)

	a.pipeline = core.NewIngestionPipeline(a.meta, a.chunks, core.PDFExtractor{}, embedder, cfg, log)
	retrieval := core.NewRetrievalService(a.meta, a.chunks, embedder, cfg, log)
	streamer := core.NewResponseStreamer(a.llm, cfg, log)
	a.chatService = core.NewChatService(a.meta, retrieval, streamer, log)
	a.documentService = core.NewDocumentService(a.meta, a.chunks, a.pipeline, log)
	return a, nil
}

func (a *app) Close() {
	if a.llm != nil {
		a.llm.Close()
	}
	if a.chunks != nil {
		if err := a.chunks.Close(); err != nil {
			a.log.Warn("Error closing vector store", "error", err)
		}
	}
	if a.meta != nil {
		if err := a.meta.Close(); err != nil {
			a.log.Warn("Error closing database", "error", err)
		}
	}
	a.log.Sync()
}
