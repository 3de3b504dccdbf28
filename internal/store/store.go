package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// Store is the transactional metadata store: indexed documents, the chat log and admin users.
// Chunks and embeddings live in the vectorstore package.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func Open(url string) (*Store, error) {
	db, dialect, err := OpenDB(url)
	if err != nil {
		return nil, err
	}

	store := &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS admin_users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        hashed_password TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS indexed_documents (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        file_name TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'indexing' CHECK (status IN ('indexing', 'ready', 'error')),
        created_at DATETIME NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'ai')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_session_role ON chat_messages (session_id, role)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS admin_users (
        id BIGSERIAL PRIMARY KEY,
        username VARCHAR(50) UNIQUE NOT NULL,
        hashed_password VARCHAR(255) NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS indexed_documents (
        id BIGSERIAL PRIMARY KEY,
        file_name VARCHAR(255) NOT NULL,
        status VARCHAR(20) NOT NULL DEFAULT 'indexing' CHECK (status IN ('indexing', 'ready', 'error')),
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
        id BIGSERIAL PRIMARY KEY,
        session_id VARCHAR(255) NOT NULL,
        role VARCHAR(10) NOT NULL CHECK (role IN ('user', 'ai')),
        content TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_session_role ON chat_messages (session_id, role)`,
}

func (s *Store) initSchema() error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) q(query string) string {
	return Rebind(s.dialect, query)
}

// Admin methods
func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*AdminUser, error) {
	var admin AdminUser
	err := s.db.QueryRowContext(ctx, s.q("SELECT id, username, hashed_password FROM admin_users WHERE username = ?"), username).
		Scan(&admin.ID, &admin.Username, &admin.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Admin not found
		}
		return nil, fmt.Errorf("failed to query admin: %w", err)
	}
	return &admin, nil
}

func (s *Store) CreateAdmin(ctx context.Context, username, passwordHash string) (*AdminUser, error) {
	admin := AdminUser{Username: username, PasswordHash: passwordHash}
	err := s.db.QueryRowContext(ctx, s.q("INSERT INTO admin_users (username, hashed_password) VALUES (?, ?) RETURNING id"), username, passwordHash).
		Scan(&admin.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert admin: %w", err)
	}
	return &admin, nil
}

// Document methods
func (s *Store) CreateDocument(ctx context.Context, fileName string) (*Document, error) {
	doc := Document{FileName: fileName, Status: StatusIndexing, CreatedAt: s.now()}
	err := s.db.QueryRowContext(ctx, s.q("INSERT INTO indexed_documents (file_name, status, created_at) VALUES (?, ?, ?) RETURNING id"),
		doc.FileName, string(doc.Status), doc.CreatedAt).Scan(&doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return &doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	var status string
	err := s.db.QueryRowContext(ctx, s.q("SELECT id, file_name, status, created_at FROM indexed_documents WHERE id = ?"), id).
		Scan(&doc.ID, &doc.FileName, &status, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Status = DocumentStatus(status)
	return &doc, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE indexed_documents SET status = ? WHERE id = ?"), string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM indexed_documents WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListDocuments returns one page of documents, newest first, and the total count.
func (s *Store) ListDocuments(ctx context.Context, page Page) ([]Document, int, error) {
	rows, err := s.db.QueryContext(ctx, s.q("SELECT id, file_name, status, created_at FROM indexed_documents ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query documents: %w", err)
	}

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var status string
		if err := rows.Scan(&doc.ID, &doc.FileName, &status, &doc.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan document row: %w", err)
		}
		doc.Status = DocumentStatus(status)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("failed to iterate documents: %w", err)
	}
	rows.Close()

	total, err := s.count(ctx, "indexed_documents")
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ReadyDocumentIDs lists the documents whose chunks may be served to retrieval.
func (s *Store) ReadyDocumentIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q("SELECT id FROM indexed_documents WHERE status = ? ORDER BY id"), string(StatusReady))
	if err != nil {
		return nil, fmt.Errorf("failed to query ready documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Chat message methods
func (s *Store) CreateChatMessage(ctx context.Context, msg *ChatMessage) error {
	msg.CreatedAt = s.now()

	err := s.db.QueryRowContext(ctx, s.q("INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns one page of the chat log, newest first, and the total count.
func (s *Store) ListChatMessages(ctx context.Context, page Page) ([]ChatMessage, int, error) {
	rows, err := s.db.QueryContext(ctx, s.q("SELECT id, session_id, role, content, created_at FROM chat_messages ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query chat messages: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.count(ctx, "chat_messages")
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// ListSessionMessages returns the messages of one session in the order they were written.
func (s *Store) ListSessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.q("SELECT id, session_id, role, content, created_at FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC, id ASC"),
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session messages: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]ChatMessage, error) {
	defer rows.Close()

	messages := []ChatMessage{}
	for rows.Next() {
		var msg ChatMessage
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		msg.Role = Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return messages, nil
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return total, nil
}
