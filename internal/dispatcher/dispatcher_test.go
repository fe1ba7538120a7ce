package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/vitabot/internal/catalog"
	"github.com/ashureev/vitabot/internal/domain"
	"github.com/ashureev/vitabot/internal/engine"
	"github.com/ashureev/vitabot/internal/metrics"
	"github.com/ashureev/vitabot/internal/queue"
	"github.com/ashureev/vitabot/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID int64 = 42

const testCatalog = `
currency: BRL
symptoms:
  - {id: fatigue, prompt: "Fatigue?", deficiency_hint: "Iron"}
  - {id: headache, prompt: "Headache?", deficiency_hint: "Magnesium"}
plans:
  - {tag: free, title: Basic, price_units: 0, prescription: "Basic prescription."}
  - {tag: tier2, title: Complete, price_units: 1990, prescription: "Complete prescription."}
  - {tag: tier3, title: Premium, price_units: 4990, prescription: "Premium prescription."}
`

type call struct {
	method string
	chatID int64
	text   string
}

// fakeMessenger records calls and fails the call whose 1-based index is failAt.
type fakeMessenger struct {
	mu     sync.Mutex
	calls  []call
	failAt int
}

var errSend = errors.New("telegram unavailable")

func (f *fakeMessenger) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return errSend
	}
	return nil
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string, _ domain.Keyboard) error {
	return f.record(call{method: "sendText", chatID: chatID, text: text})
}

func (f *fakeMessenger) EditText(_ context.Context, chatID int64, _ int, text string, _ domain.Keyboard) error {
	return f.record(call{method: "editText", chatID: chatID, text: text})
}

func (f *fakeMessenger) SendInvoice(_ context.Context, chatID int64, inv domain.Invoice) error {
	return f.record(call{method: "sendInvoice", chatID: chatID, text: inv.Payload})
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, _ string, text string) error {
	return f.record(call{method: "answerCallback", text: text})
}

func (f *fakeMessenger) AnswerPrecheckout(_ context.Context, _ string, ok bool, reason string) error {
	if ok {
		reason = "ok"
	}
	return f.record(call{method: "answerPrecheckout", text: reason})
}

func (f *fakeMessenger) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

type fixture struct {
	queue     *queue.EventQueue
	sessions  *store.MemoryStore
	messenger *fakeMessenger
	ledger    *store.SQLiteLedger
	d         *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	ledger, err := store.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	f := &fixture{
		queue:     queue.New(),
		sessions:  store.NewMemoryStore(),
		messenger: &fakeMessenger{},
		ledger:    ledger,
	}
	f.d = New(f.queue, f.sessions, engine.New(c, engine.Options{InvoicesEnabled: true}), f.messenger, Config{
		Ledger:  ledger,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Now:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func command(name string) domain.Event {
	return domain.Event{ID: "ev-" + name, ConversationID: chatID, Kind: domain.EventCommand, Command: name}
}

// answer presses a button of the first questionnaire pass.
func answer(i int, yes bool) domain.Event {
	data := fmt.Sprintf("symptom:1:%d:no", i)
	if yes {
		data = fmt.Sprintf("symptom:1:%d:yes", i)
	}
	return domain.Event{ConversationID: chatID, Kind: domain.EventCallbackAction, CallbackID: "cb", CallbackData: data, MessageID: 10}
}

func text(s string) domain.Event {
	return domain.Event{ConversationID: chatID, Kind: domain.EventText, Text: s}
}

func paid(chargeID string) domain.Event {
	return domain.Event{
		ConversationID: chatID,
		Kind:           domain.EventPaymentOutcome,
		Payment: &domain.PaymentInfo{
			Currency:         "BRL",
			TotalAmount:      1990,
			InvoicePayload:   engine.InvoicePayload(domain.PlanTier2, chatID),
			TelegramChargeID: chargeID,
			ProviderChargeID: "prov-" + chargeID,
		},
	}
}

func (f *fixture) process(t *testing.T, events ...domain.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, f.d.Process(context.Background(), ev))
	}
}

func TestProcessCreatesSessionAndExecutesActions(t *testing.T) {
	f := newFixture(t)

	f.process(t, command("start"))

	s, ok := f.sessions.Get(chatID)
	require.True(t, ok)
	assert.Equal(t, domain.StateSymptomQuestion, s.State)
	assert.Equal(t, []string{"sendText", "sendText"}, f.messenger.methods())
	assert.Equal(t, chatID, f.messenger.calls[1].chatID)
	assert.Contains(t, f.messenger.calls[1].text, "Fatigue?")
}

func TestActionFailureKeepsPreviousSession(t *testing.T) {
	f := newFixture(t)
	f.process(t, command("start"))
	before, _ := f.sessions.Get(chatID)

	// Fail the edit that follows the callback answer.
	f.messenger.failAt = len(f.messenger.calls) + 2
	err := f.d.Process(context.Background(), answer(0, true))

	require.ErrorIs(t, err, errSend)
	after, _ := f.sessions.Get(chatID)
	assert.Equal(t, before, after)
	// The next question is never sent.
	assert.Equal(t, []string{"sendText", "sendText", "answerCallback", "editText"}, f.messenger.methods())
}

func TestFailureOnFirstEventStillCreatesSession(t *testing.T) {
	f := newFixture(t)
	f.messenger.failAt = 1

	err := f.d.Process(context.Background(), command("start"))

	require.Error(t, err)
	s, ok := f.sessions.Get(chatID)
	require.True(t, ok)
	assert.Equal(t, domain.StateWelcome, s.State)
}

func TestPaymentIsRecordedOnceAndRedeliveryIgnored(t *testing.T) {
	f := newFixture(t)
	f.process(t, command("start"), answer(0, true), answer(1, false), text("complete"))
	s, _ := f.sessions.Get(chatID)
	require.Equal(t, domain.StatePayment, s.State)

	f.process(t, paid("ch-1"))

	s, _ = f.sessions.Get(chatID)
	assert.Equal(t, domain.StateTerminal, s.State)
	payments, err := f.ledger.ListPayments(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PlanTier2, payments[0].Plan)
	assert.Equal(t, 1990, payments[0].AmountUnits)
	assert.Equal(t, "prov-ch-1", payments[0].ProviderChargeID)

	calls := len(f.messenger.calls)
	f.process(t, paid("ch-1"))
	assert.Len(t, f.messenger.calls, calls, "redelivered payment must not reach the user again")
}

func TestPaymentAfterRestartIsStillRecorded(t *testing.T) {
	f := newFixture(t)
	f.process(t, command("start"), answer(0, true), answer(1, false), text("complete"))
	// The user restarts between precheckout and the successful payment.
	f.process(t, command("start"), paid("ch-late"))

	s, _ := f.sessions.Get(chatID)
	assert.Equal(t, domain.StateSymptomQuestion, s.State)
	assert.Nil(t, s.SelectedPlan)

	payments, err := f.ledger.ListPayments(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "ch-late", payments[0].TelegramChargeID)
	assert.Equal(t, domain.PlanTier2, payments[0].Plan)

	calls := len(f.messenger.calls)
	f.process(t, paid("ch-late"))
	assert.Len(t, f.messenger.calls, calls, "redelivered payment must not reach the user again")
}

func TestPaymentWithoutChargeIDIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.process(t, command("start"), answer(0, true), answer(1, false), text("complete"), paid(""))

	s, _ := f.sessions.Get(chatID)
	assert.Equal(t, domain.StateTerminal, s.State)
	payments, err := f.ledger.ListPayments(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRunProcessesQueueInOrderAndStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx) }()

	f.queue.Enqueue(command("start"))
	f.queue.Enqueue(answer(0, true))
	f.queue.Enqueue(answer(1, true))

	require.Eventually(t, func() bool {
		s, ok := f.sessions.Get(chatID)
		return ok && s.State == domain.StatePlanSelect
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	s, _ := f.sessions.Get(chatID)
	assert.Len(t, s.CollectedSymptoms, 2)
}

func TestRunReturnsWhenQueueClosed(t *testing.T) {
	f := newFixture(t)
	f.queue.Enqueue(command("start"))
	f.queue.Close()

	require.NoError(t, f.d.Run(context.Background()))

	s, ok := f.sessions.Get(chatID)
	require.True(t, ok)
	assert.Equal(t, domain.StateSymptomQuestion, s.State)
}

func TestRunContinuesAfterFailedEvent(t *testing.T) {
	f := newFixture(t)
	f.messenger.failAt = 1
	f.queue.Enqueue(command("start"))
	f.queue.Enqueue(command("start"))
	f.queue.Close()

	require.NoError(t, f.d.Run(context.Background()))

	s, _ := f.sessions.Get(chatID)
	assert.Equal(t, domain.StateSymptomQuestion, s.State)
}
