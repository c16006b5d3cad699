package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatrelay/chatrelay/internal/messenger"
	"github.com/chatrelay/chatrelay/internal/transport/http/middleware"
)

// NewRouter assembles the full HTTP surface: health and metrics endpoints
// plus the key-protected /api/v1 message routes.
func NewRouter(handler *MessageHandler, client messenger.Client, apiKey string, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		state := client.State(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if state != messenger.StateReady {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":       "ok",
			"client_state": string(state),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(middleware.APIKeyAuthMiddleware(apiKey, logger))
		handler.RegisterRoutes(v1)
	})

	return r
}
