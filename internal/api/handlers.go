package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"insurechat.io/rag-backend/internal/config"
	"insurechat.io/rag-backend/internal/core"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
)

// Multipart parts beyond this stay on disk while parsing.
const multipartMemory = 32 << 20

type APIHandler struct {
	chatService     *core.ChatService
	documentService *core.DocumentService
	authService     *core.AuthService
	cfg             *config.Config
	log             *logger.Logger
}

func NewAPIHandler(cs *core.ChatService, ds *core.DocumentService, as *core.AuthService, cfg *config.Config, log *logger.Logger) *APIHandler {
	return &APIHandler{
		chatService:     cs,
		documentService: ds,
		authService:     as,
		cfg:             cfg,
		log:             log.With("component", "APIHandler"),
	}
}

type PageResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Insurance RAG Chatbot API"})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type ChatRequest struct {
	Message string `json:"message"`
}

type chatFrame struct {
	Content string `json:"content"`
}

// ChatHandler streams the answer as server-sent events: one {"content": ...} frame per
// fragment, then a [DONE] frame.
func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	turn, err := h.chatService.Chat(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, core.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "Message cannot be empty")
			return
		}
		h.log.Error("Failed to start chat turn", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process chat message")
		return
	}
	log := h.log.With("session_id", turn.SessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// Replies can outlive the server's WriteTimeout.
	_ = rc.SetWriteDeadline(time.Time{})

	for fragment := range turn.Fragments() {
		payload, err := json.Marshal(chatFrame{Content: fragment})
		if err != nil {
			log.Warn("Failed to marshal chat frame", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// The client is gone; returning cancels the request context and stops generation.
			log.Info("Client disconnected mid-stream", "error", err)
			return
		}
		_ = rc.Flush()
	}

	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	_ = rc.Flush()

	if _, err := turn.Wait(); err != nil {
		log.Error("AI reply was not stored", "error", err)
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	token, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			writeUnauthorized(w, "Incorrect username or password")
			return
		}
		h.log.Error("Login failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   h.authService.TokenTTL(),
	})
}

// InitAdminHandler creates the configured admin account if it does not exist yet.
func (h *APIHandler) InitAdminHandler(w http.ResponseWriter, r *http.Request) {
	created, err := h.authService.EnsureAdmin(r.Context(), h.cfg.AdminUsername, h.cfg.AdminPassword)
	if err != nil {
		h.log.Error("Failed to initialize admin", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to initialize admin user")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, messageResponse{Message: "Admin user already exists"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Admin user created successfully"})
}

type UploadResponse struct {
	Message    string `json:"message"`
	DocumentID int64  `json:"document_id"`
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", maxErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "A file field named \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	doc, err := h.documentService.Upload(r.Context(), header.Filename, data)
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "Only PDF files are allowed")
			return
		}
		h.log.Error("Document ingestion failed", "file_name", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Error processing document: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:    "Document uploaded and indexed successfully",
		DocumentID: doc.ID,
	})
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	docs, total, err := h.documentService.List(r.Context(), page)
	if err != nil {
		h.log.Error("Failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, PageResponse[store.Document]{Items: docs, Total: total, Page: page.Number, Size: page.Size})
}

func (h *APIHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Document id must be an integer")
		return
	}

	if err := h.documentService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		h.log.Error("Failed to delete document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Error deleting document")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Document deleted successfully"})
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, total, err := h.chatService.History(r.Context(), page)
	if err != nil {
		h.log.Error("Failed to list chat history", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list chat history")
		return
	}
	writeJSON(w, http.StatusOK, PageResponse[store.ChatMessage]{Items: messages, Total: total, Page: page.Number, Size: page.Size})
}

func (h *APIHandler) SessionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.chatService.Session(r.Context(), sessionID)
	if err != nil {
		h.log.Error("Failed to get session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if len(messages) == 0 {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// parsePage reads page and size, defaulting to 1 and 10.
func parsePage(r *http.Request) (store.Page, error) {
	page := store.Page{Number: 1, Size: store.DefaultPageSize}

	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, errors.New("page must be an integer")
		}
		page.Number = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, errors.New("size must be an integer")
		}
		page.Size = n
	}

	if !page.Valid() {
		return page, fmt.Errorf("page must be >= 1 and size between 1 and %d", store.MaxPageSize)
	}
	return page, nil
}
