package core

import (
	"context"

	"insurechat.io/rag-backend/internal/store"
	"insurechat.io/rag-backend/internal/vectorstore"
)

// DocumentStore is the document half of the metadata store.
type DocumentStore interface {
	CreateDocument(ctx context.Context, fileName string) (*store.Document, error)
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	UpdateDocumentStatus(ctx context.Context, id int64, status store.DocumentStatus) error
	DeleteDocument(ctx context.Context, id int64) error
	ListDocuments(ctx context.Context, page store.Page) ([]store.Document, int, error)
	ReadyDocumentIDs(ctx context.Context) ([]int64, error)
}

type ChatStore interface {
	CreateChatMessage(ctx context.Context, msg *store.ChatMessage) error
	ListChatMessages(ctx context.Context, page store.Page) ([]store.ChatMessage, int, error)
	ListSessionMessages(ctx context.Context, sessionID string) ([]store.ChatMessage, error)
}

type AdminStore interface {
	GetAdminByUsername(ctx context.Context, username string) (*store.AdminUser, error)
	CreateAdmin(ctx context.Context, username, passwordHash string) (*store.AdminUser, error)
}

var (
	_ DocumentStore = (*store.Store)(nil)
	_ ChatStore     = (*store.Store)(nil)
	_ AdminStore    = (*store.Store)(nil)
)

// ChunkStore is the subset of vectorstore.Storage the services use.
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []vectorstore.Chunk) error
	DeleteByDocument(ctx context.Context, documentID int64) (int64, error)
	SearchSimilar(ctx context.Context, query []float32, documentIDs []int64, limit int) ([]vectorstore.ScoredChunk, error)
	SearchText(ctx context.Context, query string, documentIDs []int64, limit int) ([]vectorstore.Chunk, error)
	Sample(ctx context.Context, documentIDs []int64, limit int) ([]vectorstore.Chunk, error)
}
