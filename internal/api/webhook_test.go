package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/vitabot/internal/domain"
	"github.com/ashureev/vitabot/internal/metrics"
	"github.com/ashureev/vitabot/internal/queue"
)

const testToken = "123:abc"

func newTestServer(t *testing.T, q *queue.EventQueue) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	webhook := NewWebhookHandler(q, testToken, m, nil)
	webhook.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	health := NewHealthHandler(nil, q.Len, func() int { return 0 })
	return NewRouter(webhook, health, reg)
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(w, req)
	return w
}

func TestWebhookDecodeErrorStillAcknowledges(t *testing.T) {
	q := queue.New()
	srv := newTestServer(t, q)

	for _, body := range []string{"{not json", "", `{"update_id": "x"}`} {
		w := post(srv, "/webhook/"+testToken, body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	}
	assert.Equal(t, 0, q.Len())
}

func TestWebhookEnqueuesDecodedEvent(t *testing.T) {
	q := queue.New()
	srv := newTestServer(t, q)

	body := `{"update_id":1,"message":{"message_id":5,"chat":{"id":42,"type":"private"},"date":1,
		"text":"/start now","entities":[{"type":"bot_command","offset":0,"length":6}]}}`
	w := post(srv, "/webhook/"+testToken, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, domain.EventCommand, ev.Kind)
	assert.Equal(t, int64(42), ev.ConversationID)
	assert.Equal(t, "start", ev.Command)
	assert.NotEmpty(t, ev.ID)
}

func TestWebhookUnsupportedUpdateIsIgnored(t *testing.T) {
	q := queue.New()
	srv := newTestServer(t, q)

	body := `{"update_id":2,"edited_message":{"message_id":5,"chat":{"id":42,"type":"private"},"date":1,"text":"hi"}}`
	w := post(srv, "/webhook/"+testToken, body)

	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, 0, q.Len())
}

func TestWebhookWrongTokenIsNotFound(t *testing.T) {
	q := queue.New()
	srv := newTestServer(t, q)

	w := post(srv, "/webhook/wrong", `{"update_id":1,"message":{"message_id":1,"chat":{"id":1},"text":"hi"}}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, q.Len())

	// A wrong token is indistinguishable from an unknown path.
	unknown := post(srv, "/nowhere", "{}")
	assert.Equal(t, unknown.Code, w.Code)
	assert.Equal(t, unknown.Body.String(), w.Body.String())
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestWebhookRejectsOtherMethods(t *testing.T) {
	srv := newTestServer(t, queue.New())

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook/"+testToken, nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"error":"method not allowed"}`, w.Body.String())
}

func TestWebhookClosedQueueStillAcknowledges(t *testing.T) {
	q := queue.New()
	q.Close()
	srv := newTestServer(t, q)

	w := post(srv, "/webhook/"+testToken, `{"update_id":1,"message":{"message_id":1,"chat":{"id":1},"text":"hi"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	_, err := q.Dequeue(context.Background())
	assert.True(t, errors.Is(err, queue.ErrClosed))
}

func TestWebhookOversizedBodyAcknowledged(t *testing.T) {
	q := queue.New()
	srv := newTestServer(t, q)

	body := `{"update_id":1,"message":{"text":"` + strings.Repeat("a", maxUpdateBytes) + `"}}`
	w := post(srv, "/webhook/"+testToken, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, q.Len())
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	q := queue.New()
	srv := newTestServer(t, q)
	post(srv, "/webhook/"+testToken, "garbage")

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue_depth":0`)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `vitabot_webhook_updates_total{result="malformed"} 1`)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk gone") }

func TestReadyReportsLedgerFailure(t *testing.T) {
	h := NewHealthHandler(failingPinger{}, nil, nil)

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"ledger":"unreachable"`)
}
