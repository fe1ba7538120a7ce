package store

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/vitabot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetOrCreate(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0)
	calls := 0
	create := func() domain.Session {
		calls++
		return domain.NewSession(0, now)
	}

	first := s.GetOrCreate(42, create)
	second := s.GetOrCreate(42, create)

	assert.Equal(t, 1, calls, "create must run once per conversation")
	assert.Equal(t, int64(42), first.ConversationID)
	assert.Equal(t, domain.StateWelcome, second.State)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_PutReplacesAndIsolates(t *testing.T) {
	s := NewMemoryStore()
	sess := domain.NewSession(7, time.Now())
	sess.State = domain.StateSymptomQuestion
	sess.CollectedSymptoms = []domain.Symptom{{ID: "fatigue"}}
	s.Put(sess)

	// Mutating the caller's copy must not leak into the store.
	sess.CollectedSymptoms[0].ID = "mutated"

	got, ok := s.Get(7)
	require.True(t, ok)
	assert.Equal(t, "fatigue", got.CollectedSymptoms[0].ID)
	assert.Equal(t, domain.StateSymptomQuestion, got.State)

	_, ok = s.Get(8)
	assert.False(t, ok)
}

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()

	l, err := NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite ledger: %v", err)
	}
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l
}

func TestSQLiteLedger_RecordAndList(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	p := Payment{
		ConversationID:   42,
		Plan:             domain.PlanTier3,
		Currency:         "BRL",
		AmountUnits:      4990,
		InvoicePayload:   "tier3:42",
		TelegramChargeID: "tg-1",
		ProviderChargeID: "prov-1",
		PaidAt:           time.Unix(1700000000, 0),
	}
	require.NoError(t, l.RecordPayment(ctx, p))
	require.NoError(t, l.Ping(ctx))

	has, err := l.HasPayment(ctx, "tg-1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = l.HasPayment(ctx, "tg-2")
	require.NoError(t, err)
	assert.False(t, has)

	payments, err := l.ListPayments(ctx, 42)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, p, payments[0])

	payments, err = l.ListPayments(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestSQLiteLedger_DuplicateCharge(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	p := Payment{ConversationID: 1, Plan: domain.PlanTier2, Currency: "BRL", AmountUnits: 1990, TelegramChargeID: "dup", PaidAt: time.Now()}
	require.NoError(t, l.RecordPayment(ctx, p))
	assert.ErrorIs(t, l.RecordPayment(ctx, p), ErrDuplicatePayment)
}

func TestSQLiteLedger_RequiresChargeID(t *testing.T) {
	l := newTestLedger(t)
	err := l.RecordPayment(context.Background(), Payment{ConversationID: 1})
	assert.Error(t, err)
}

func TestSQLiteLedger_FileBacked(t *testing.T) {
	path := t.TempDir() + "/nested/ledger.db"
	l, err := NewSQLiteLedger(path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	require.NoError(t, l.RecordPayment(context.Background(), Payment{
		ConversationID: 5, Plan: domain.PlanTier2, Currency: "BRL", AmountUnits: 1990,
		TelegramChargeID: "file-1", PaidAt: time.Now(),
	}))
}
