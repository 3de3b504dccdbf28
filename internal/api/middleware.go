package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"insurechat.io/rag-backend/internal/core"
	"insurechat.io/rag-backend/internal/logger"
	"insurechat.io/rag-backend/internal/store"
)

type contextKey string

const adminContextKey contextKey = "admin"

// AdminFromContext returns the admin resolved by AdminOnly.
func AdminFromContext(ctx context.Context) (*store.AdminUser, bool) {
	admin, ok := ctx.Value(adminContextKey).(*store.AdminUser)
	return admin, ok
}

// AdminOnly rejects requests without a valid bearer token for an existing admin.
func (h *APIHandler) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
			writeUnauthorized(w, "Not authenticated")
			return
		}

		admin, err := h.authService.Authenticate(r.Context(), strings.TrimSpace(authHeader[7:]))
		if err != nil {
			if errors.Is(err, core.ErrUnauthorized) {
				writeUnauthorized(w, "Could not validate credentials")
				return
			}
			h.log.Error("Failed to authenticate admin", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to authenticate")
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs one line per request through zap.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
