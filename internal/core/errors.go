package core

import "errors"

var (
	ErrUnsupportedFormat    = errors.New("only PDF files are supported")
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrNoText               = errors.New("no text could be extracted from the document")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidCredentials   = errors.New("incorrect username or password")
	ErrUnauthorized         = errors.New("could not validate credentials")
	ErrInvalidChunkWindow   = errors.New("chunk overlap must be non-negative and smaller than chunk size")
	ErrInvalidTransition    = errors.New("invalid document status transition")
)
