package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/vitabot/internal/domain"
	"github.com/ashureev/vitabot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) a ledger database. The special path
// ":memory:" keeps the ledger for the process lifetime only.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	inMemory := dbPath == ":memory:"

	var dsn string
	if inMemory {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	ledger := &SQLiteLedger{db: db}
	if err := ledger.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return ledger, nil
}

func (l *SQLiteLedger) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS payments (
		telegram_charge_id TEXT PRIMARY KEY,
		conversation_id INTEGER NOT NULL,
		plan TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount_units INTEGER NOT NULL,
		invoice_payload TEXT NOT NULL,
		provider_charge_id TEXT,
		paid_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_conversation ON payments(conversation_id, paid_at);
	`
	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// RecordPayment inserts a payment. Busy/locked errors are retried with
// exponential backoff.
func (l *SQLiteLedger) RecordPayment(ctx context.Context, p Payment) error {
	if p.TelegramChargeID == "" {
		return fmt.Errorf("record payment: telegram charge id is required")
	}

	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = l.recordPaymentOnce(ctx, p)
		if err == nil || errors.Is(err, ErrDuplicatePayment) {
			return err
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("RecordPayment hit a locked database, retrying",
			"conversation_id", p.ConversationID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("record payment for %d: %w", p.ConversationID, err)
}

func (l *SQLiteLedger) recordPaymentOnce(ctx context.Context, p Payment) error {
	query := `
	INSERT INTO payments (
		telegram_charge_id, conversation_id, plan, currency, amount_units,
		invoice_payload, provider_charge_id, paid_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(telegram_charge_id) DO NOTHING`

	var providerChargeID interface{}
	if p.ProviderChargeID != "" {
		providerChargeID = p.ProviderChargeID
	}

	result, err := l.db.ExecContext(ctx, query,
		p.TelegramChargeID, p.ConversationID, string(p.Plan), p.Currency,
		p.AmountUnits, p.InvoicePayload, providerChargeID, p.PaidAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDuplicatePayment
	}
	return nil
}

// HasPayment reports whether a charge ID is already recorded.
func (l *SQLiteLedger) HasPayment(ctx context.Context, telegramChargeID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM payments WHERE telegram_charge_id = ?`, telegramChargeID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query payment: %w", err)
	}
	return n > 0, nil
}

// ListPayments returns the payments of one conversation, oldest first.
func (l *SQLiteLedger) ListPayments(ctx context.Context, conversationID int64) ([]Payment, error) {
	query := `
		SELECT telegram_charge_id, conversation_id, plan, currency, amount_units,
		       invoice_payload, provider_charge_id, paid_at
		FROM payments WHERE conversation_id = ?
		ORDER BY paid_at, telegram_charge_id`

	rows, err := l.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close payment rows", "error", closeErr)
		}
	}()

	var payments []Payment
	for rows.Next() {
		var p Payment
		var plan string
		var providerChargeID sql.NullString
		var paidAt int64

		if err := rows.Scan(
			&p.TelegramChargeID, &p.ConversationID, &plan, &p.Currency, &p.AmountUnits,
			&p.InvoicePayload, &providerChargeID, &paidAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}

		p.Plan = domain.PlanTag(plan)
		p.ProviderChargeID = providerChargeID.String
		p.PaidAt = time.Unix(paidAt, 0)
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	return payments, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ Ledger = (*SQLiteLedger)(nil)
var _ SessionStore = (*MemoryStore)(nil)
