package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"insurechat.io/rag-backend/internal/logger"
)

func NewRouter(apiHandler *APIHandler, frontendURL string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log.With("component", "http")))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", apiHandler.RootHandler)
	r.Get("/health", apiHandler.HealthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/chat", apiHandler.ChatHandler)
		r.Post("/auth/login", apiHandler.LoginHandler)
		r.Post("/auth/init-admin", apiHandler.InitAdminHandler)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(apiHandler.AdminOnly)

			r.Get("/chat-history", apiHandler.ChatHistoryHandler)
			r.Get("/chat-history/{sessionID}", apiHandler.SessionHistoryHandler)

			r.Post("/documents/upload", apiHandler.UploadDocumentHandler)
			r.Get("/documents", apiHandler.ListDocumentsHandler)
			r.Delete("/documents/{documentID}", apiHandler.DeleteDocumentHandler)
		})
	})

	return r
}
