package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const apiKeyHeader = "X-Api-Key"

// APIKeyAuthMiddleware guards the API routes with a single static key. An
// empty configured key disables authentication, which is only sensible for
// local development.
func APIKeyAuthMiddleware(apiKey string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(apiKeyHeader)
			if provided == "" {
				logger.WarnContext(r.Context(), "API key header missing", "remote_addr", r.RemoteAddr)
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.WarnContext(r.Context(), "Invalid API key", "remote_addr", r.RemoteAddr)
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
