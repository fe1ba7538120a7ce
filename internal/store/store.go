// Package store provides session storage and the payment ledger.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/vitabot/internal/domain"
)

// ErrDuplicatePayment is returned when a payment with the same Telegram
// charge ID has already been recorded.
var ErrDuplicatePayment = errors.New("payment already recorded")

// SessionStore maps conversation IDs to dialogue sessions.
type SessionStore interface {
	// Get returns the session for a conversation, if one exists.
	Get(conversationID int64) (domain.Session, bool)

	// GetOrCreate returns the existing session or stores and returns a new
	// one built by create.
	GetOrCreate(conversationID int64, create func() domain.Session) domain.Session

	// Put replaces the stored session.
	Put(session domain.Session)

	// Len returns the number of sessions.
	Len() int
}

// Payment is one successful payment recorded in the ledger.
type Payment struct {
	ConversationID   int64
	Plan             domain.PlanTag
	Currency         string
	AmountUnits      int
	InvoicePayload   string
	TelegramChargeID string
	ProviderChargeID string
	PaidAt           time.Time
}

// Ledger records successful payments.
type Ledger interface {
	// RecordPayment stores a payment. It returns ErrDuplicatePayment if the
	// Telegram charge ID is already known.
	RecordPayment(ctx context.Context, p Payment) error

	// HasPayment reports whether a charge ID has already been recorded.
	HasPayment(ctx context.Context, telegramChargeID string) (bool, error)

	// ListPayments returns the payments of one conversation, oldest first.
	ListPayments(ctx context.Context, conversationID int64) ([]Payment, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying database.
	Close() error
}
