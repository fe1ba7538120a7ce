// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vitabot"

// Outcome labels for processed events.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// Result labels for webhook deliveries.
const (
	WebhookEnqueued  = "enqueued"
	WebhookIgnored   = "ignored"
	WebhookMalformed = "malformed"
	WebhookDropped   = "dropped"
)

// Metrics groups the collectors shared by the ingress adapter and the
// dispatcher. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg prometheus.Registerer

	// eventsTotal counts processed events.
	// Labels: kind (event kind), outcome (committed, failed, duplicate)
	eventsTotal *prometheus.CounterVec

	// actionFailures counts outbound calls that returned an error.
	// Labels: action (action kind)
	actionFailures *prometheus.CounterVec

	// processDuration measures one event from dequeue to commit.
	processDuration prometheus.Histogram

	// webhookUpdates counts webhook deliveries by decode result.
	// Labels: result (enqueued, ignored, malformed, dropped)
	webhookUpdates *prometheus.CounterVec

	// paymentsTotal counts recorded payments.
	// Labels: plan
	paymentsTotal *prometheus.CounterVec
}

// New registers all collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "events_total",
			Help:      "Total events processed by kind and outcome",
		}, []string{"kind", "outcome"}),
		actionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "action_failures_total",
			Help:      "Total outbound actions that failed",
		}, []string{"action"}),
		processDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "process_duration_seconds",
			Help:      "Time to process one event including outbound calls",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		webhookUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "updates_total",
			Help:      "Total webhook deliveries by decode result",
		}, []string{"result"}),
		paymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "recorded_total",
			Help:      "Total successful payments recorded in the ledger",
		}, []string{"plan"}),
	}
}

// TrackQueue exports the current queue depth and session count as gauges.
func (m *Metrics) TrackQueue(depth, sessions func() int) {
	if m == nil {
		return
	}
	factory := promauto.With(m.reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Events waiting to be processed",
	}, func() float64 { return float64(depth()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Conversations held in the session store",
	}, func() float64 { return float64(sessions()) })
}

// EventProcessed records the outcome and duration of one event.
func (m *Metrics) EventProcessed(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind, outcome).Inc()
	m.processDuration.Observe(seconds)
}

// ActionFailed records a failed outbound call.
func (m *Metrics) ActionFailed(action string) {
	if m == nil {
		return
	}
	m.actionFailures.WithLabelValues(action).Inc()
}

// WebhookUpdate records the decode result of one delivery.
func (m *Metrics) WebhookUpdate(result string) {
	if m == nil {
		return
	}
	m.webhookUpdates.WithLabelValues(result).Inc()
}

// PaymentRecorded records a payment written to the ledger.
func (m *Metrics) PaymentRecorded(plan string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(plan).Inc()
}
