package store

import "time"

type DocumentStatus string

const (
	// StatusPending is the state of a document before its row exists. It is never persisted.
	StatusPending  DocumentStatus = "pending"
	StatusIndexing DocumentStatus = "indexing"
	StatusReady    DocumentStatus = "ready"
	StatusError    DocumentStatus = "error"
)

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type AdminUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Do not expose this in JSON responses
}

type Document struct {
	ID        int64          `json:"id"`
	FileName  string         `json:"file_name"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page selects a 1-based page of a listing ordered newest first.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Page) Valid() bool {
	return p.Number >= 1 && p.Size >= 1 && p.Size <= MaxPageSize
}
