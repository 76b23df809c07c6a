package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bugbridge/internal/platform/middleware"
)

// NewRouter wires the public endpoints. Only the webhook is authenticated;
// health and metrics stay open for the platform.
func NewRouter(h *Handler, signingKey string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireServiceToken(signingKey, logger))
		r.Post("/webhook/bug", h.handleWebhook)
	})

	return r
}
