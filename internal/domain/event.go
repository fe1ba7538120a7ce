package domain

import (
	"time"
)

// EventKind categorizes inbound activity.
type EventKind string

const (
	EventCommand            EventKind = "command"
	EventText               EventKind = "text"
	EventCallbackAction     EventKind = "callback_action"
	EventPaymentOutcome     EventKind = "payment_outcome"
	EventPrecheckoutRequest EventKind = "precheckout_request"
)

// PaymentInfo carries the payment fields of precheckout and successful-payment updates.
type PaymentInfo struct {
	QueryID          string `json:"query_id,omitempty"`
	Currency         string `json:"currency"`
	TotalAmount      int    `json:"total_amount"`
	InvoicePayload   string `json:"invoice_payload"`
	TelegramChargeID string `json:"telegram_charge_id,omitempty"`
	ProviderChargeID string `json:"provider_charge_id,omitempty"`
}

// Event is one decoded unit of inbound activity. It is passed by value and
// never modified after decoding.
type Event struct {
	ID             string       `json:"id"`
	ConversationID int64        `json:"conversation_id"`
	Kind           EventKind    `json:"kind"`
	Command        string       `json:"command,omitempty"`
	Text           string       `json:"text,omitempty"`
	CallbackID     string       `json:"callback_id,omitempty"`
	CallbackData   string       `json:"callback_data,omitempty"`
	MessageID      int          `json:"message_id,omitempty"`
	Payment        *PaymentInfo `json:"payment,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`
}
