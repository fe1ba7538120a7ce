package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/vitabot/internal/domain"
	"github.com/ashureev/vitabot/internal/metrics"
	"github.com/ashureev/vitabot/internal/middleware"
)

// maxUpdateBytes caps the size of one webhook body.
const maxUpdateBytes = 1 << 20

// Enqueuer accepts decoded events without blocking.
type Enqueuer interface {
	Enqueue(e domain.Event) bool
}

// WebhookHandler decodes Telegram updates and hands them to the queue.
type WebhookHandler struct {
	queue   Enqueuer
	token   string
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewWebhookHandler creates a webhook handler that only accepts requests
// addressed to /webhook/{token}.
func NewWebhookHandler(q Enqueuer, token string, m *metrics.Metrics, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		queue:   q,
		token:   token,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes registers the webhook route.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireToken(h.token, http.HandlerFunc(notFound))).Post("/webhook/{token}", h.ServeWebhook)
}

// ServeWebhook always acknowledges with 200 "OK". Decode failures are logged
// and dropped: answering with an error would only make Telegram redeliver
// the same broken update.
func (h *WebhookHandler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUpdateBytes)

	var update tgbotapi.Update
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		h.metrics.WebhookUpdate(metrics.WebhookMalformed)
		h.logger.Warn("[WEBHOOK] Failed to decode update", "error", err)
		OK(w)
		return
	}

	ev, ok := Decode(update, h.now())
	if !ok {
		h.metrics.WebhookUpdate(metrics.WebhookIgnored)
		h.logger.Debug("[WEBHOOK] Ignoring unsupported update", "update_id", update.UpdateID)
		OK(w)
		return
	}

	if !h.queue.Enqueue(ev) {
		h.metrics.WebhookUpdate(metrics.WebhookDropped)
		h.logger.Warn("[WEBHOOK] Queue closed, update dropped",
			"update_id", update.UpdateID,
			"conversation_id", ev.ConversationID)
		OK(w)
		return
	}

	h.metrics.WebhookUpdate(metrics.WebhookEnqueued)
	h.logger.Debug("[WEBHOOK] Update enqueued",
		"update_id", update.UpdateID,
		"event_id", ev.ID,
		"conversation_id", ev.ConversationID,
		"kind", ev.Kind)
	OK(w)
}
