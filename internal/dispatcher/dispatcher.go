// Package dispatcher runs the single consumer loop that turns queued events
// into session transitions and outbound calls.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/vitabot/internal/domain"
	"github.com/ashureev/vitabot/internal/engine"
	"github.com/ashureev/vitabot/internal/metrics"
	"github.com/ashureev/vitabot/internal/queue"
	"github.com/ashureev/vitabot/internal/store"
)

// DefaultActionTimeout bounds each outbound call.
const DefaultActionTimeout = 10 * time.Second

// Messenger executes outbound actions against the chat platform.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, kb domain.Keyboard) error
	SendInvoice(ctx context.Context, chatID int64, inv domain.Invoice) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	AnswerPrecheckout(ctx context.Context, queryID string, ok bool, reason string) error
}

// Config holds the optional collaborators of a Dispatcher.
type Config struct {
	// ActionTimeout bounds each outbound call. Zero means DefaultActionTimeout.
	ActionTimeout time.Duration

	// Ledger records successful payments. Nil disables recording and
	// duplicate-charge detection.
	Ledger store.Ledger

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now is the clock used for session timestamps. Nil means time.Now.
	Now func() time.Time
}

// Dispatcher owns all session mutations. Exactly one goroutine may call Run.
type Dispatcher struct {
	queue     *queue.EventQueue
	sessions  store.SessionStore
	engine    *engine.Engine
	messenger Messenger
	ledger    store.Ledger
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// New creates a dispatcher.
func New(q *queue.EventQueue, sessions store.SessionStore, eng *engine.Engine, messenger Messenger, cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		queue:     q,
		sessions:  sessions,
		engine:    eng,
		messenger: messenger,
		ledger:    cfg.Ledger,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		timeout:   cfg.ActionTimeout,
		now:       cfg.Now,
	}
}

// Run processes events until ctx is canceled, returning ctx.Err(), or until
// the queue is closed, returning nil. Events still queued at shutdown are
// discarded; the platform redelivers updates that were never processed.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("[DISPATCH] Dispatcher started")
	for {
		ev, err := d.queue.Dequeue(ctx)
		if err != nil {
			dropped := d.queue.Drain()
			if errors.Is(err, queue.ErrClosed) {
				d.logger.Info("[DISPATCH] Queue closed, dispatcher stopping")
				return nil
			}
			d.logger.Info("[DISPATCH] Dispatcher shutting down",
				"reason", err,
				"discarded", len(dropped))
			return err
		}

		// Errors are contained to the event that caused them.
		_ = d.Process(ctx, ev)
	}
}

// Process runs one event through the engine, executes the resulting actions
// in order and persists the outcome. When an action fails, the remaining
// actions are skipped and the session stays at its pre-event state.
func (d *Dispatcher) Process(ctx context.Context, ev domain.Event) error {
	start := time.Now()
	// An event that has started is finished even during shutdown.
	ctx = context.WithoutCancel(ctx)
	logger := d.logger.With("event_id", ev.ID, "conversation_id", ev.ConversationID, "kind", ev.Kind)

	if d.isDuplicatePayment(ctx, ev, logger) {
		d.metrics.EventProcessed(string(ev.Kind), metrics.OutcomeDuplicate, time.Since(start).Seconds())
		return nil
	}

	current := d.sessions.GetOrCreate(ev.ConversationID, func() domain.Session {
		return d.engine.Fresh(ev.ConversationID, d.now())
	})
	next, actions := d.engine.Transition(current, ev, d.now())

	for i, action := range actions {
		if err := d.execute(ctx, action); err != nil {
			d.metrics.ActionFailed(string(action.Kind))
			d.metrics.EventProcessed(string(ev.Kind), metrics.OutcomeFailed, time.Since(start).Seconds())
			logger.Error("[DISPATCH] Action failed, session not advanced",
				"action", action.Kind,
				"index", i,
				"total", len(actions),
				"state", current.State,
				"error", err)
			d.sessions.Put(current)
			return fmt.Errorf("execute %s: %w", action.Kind, err)
		}
	}

	d.sessions.Put(next)
	if current.State != next.State {
		logger.Debug("[DISPATCH] Session transitioned", "from", current.State, "to", next.State)
	}

	// A charge is real whatever state the conversation was in when it arrived.
	if ev.Kind == domain.EventPaymentOutcome {
		d.recordPayment(ctx, current, ev, logger)
	}

	d.metrics.EventProcessed(string(ev.Kind), metrics.OutcomeCommitted, time.Since(start).Seconds())
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, a domain.Action) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch a.Kind {
	case domain.ActionSendText:
		return d.messenger.SendText(ctx, a.ChatID, a.Text, a.Keyboard)
	case domain.ActionEditText:
		return d.messenger.EditText(ctx, a.ChatID, a.MessageID, a.Text, a.Keyboard)
	case domain.ActionSendInvoice:
		if a.Invoice == nil {
			return errors.New("invoice action without invoice")
		}
		return d.messenger.SendInvoice(ctx, a.ChatID, *a.Invoice)
	case domain.ActionAnswerCallback:
		return d.messenger.AnswerCallback(ctx, a.CallbackID, a.Text)
	case domain.ActionAnswerPrecheckout:
		return d.messenger.AnswerPrecheckout(ctx, a.QueryID, a.OK, a.Reason)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// isDuplicatePayment reports whether a successful payment update was already
// recorded, which happens when the platform redelivers it.
func (d *Dispatcher) isDuplicatePayment(ctx context.Context, ev domain.Event, logger *slog.Logger) bool {
	if d.ledger == nil || ev.Kind != domain.EventPaymentOutcome || ev.Payment == nil || ev.Payment.TelegramChargeID == "" {
		return false
	}
	seen, err := d.ledger.HasPayment(ctx, ev.Payment.TelegramChargeID)
	if err != nil {
		logger.Warn("[DISPATCH] Ledger lookup failed, processing payment anyway", "error", err)
		return false
	}
	if seen {
		logger.Warn("[DISPATCH] Ignoring redelivered payment", "charge_id", ev.Payment.TelegramChargeID)
	}
	return seen
}

func (d *Dispatcher) recordPayment(ctx context.Context, s domain.Session, ev domain.Event, logger *slog.Logger) {
	if d.ledger == nil || ev.Payment == nil {
		return
	}
	if ev.Payment.TelegramChargeID == "" {
		logger.Warn("[DISPATCH] Payment without charge ID, not recorded")
		return
	}
	plan, ok := engine.PlanFromPayload(ev.Payment.InvoicePayload)
	if !ok {
		plan = s.Plan()
	}
	p := store.Payment{
		ConversationID:   ev.ConversationID,
		Plan:             plan,
		Currency:         ev.Payment.Currency,
		AmountUnits:      ev.Payment.TotalAmount,
		InvoicePayload:   ev.Payment.InvoicePayload,
		TelegramChargeID: ev.Payment.TelegramChargeID,
		ProviderChargeID: ev.Payment.ProviderChargeID,
		PaidAt:           d.now(),
	}
	if err := d.ledger.RecordPayment(ctx, p); err != nil {
		logger.Error("[DISPATCH] Failed to record payment",
			"charge_id", p.TelegramChargeID,
			"plan", p.Plan,
			"error", err)
		return
	}
	d.metrics.PaymentRecorded(string(p.Plan))
	logger.Info("[DISPATCH] Payment recorded",
		"plan", p.Plan,
		"amount", p.AmountUnits,
		"currency", p.Currency)
}
