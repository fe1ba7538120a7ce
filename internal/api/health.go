package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger is implemented by dependencies that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports readiness of the bot and its dependencies.
type HealthHandler struct {
	ledger     Pinger
	queueDepth func() int
	sessions   func() int
}

// NewHealthHandler creates a readiness handler. ledger may be nil.
func NewHealthHandler(ledger Pinger, queueDepth, sessions func() int) *HealthHandler {
	return &HealthHandler{ledger: ledger, queueDepth: queueDepth, sessions: sessions}
}

// Ready returns the status of the service and its dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if h.ledger != nil {
		if err := h.ledger.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["ledger"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["ledger"] = "ok"
		}
	}
	if h.queueDepth != nil {
		status["queue_depth"] = h.queueDepth()
	}
	if h.sessions != nil {
		status["sessions"] = h.sessions()
	}

	JSON(w, statusCode, status)
}

// RegisterRoutes registers the readiness route. Liveness is served by the
// Heartbeat middleware on /health.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ready", h.Ready)
}
