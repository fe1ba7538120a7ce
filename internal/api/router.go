package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the webhook, health and metrics endpoints. gatherer may
// be nil to disable /metrics.
func NewRouter(webhook *WebhookHandler, health *HealthHandler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.NotFound(notFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	webhook.RegisterRoutes(r)
	if health != nil {
		health.RegisterRoutes(r)
	}
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	Error(w, http.StatusNotFound, "not found")
}
