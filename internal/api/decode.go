package api

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/ashureev/vitabot/internal/domain"
)

// Decode converts a Telegram update into an event. Updates the bot does not
// handle (edits, channel posts, stickers, ...) return false.
func Decode(u tgbotapi.Update, now time.Time) (domain.Event, bool) {
	ev := domain.Event{
		ID:         uuid.NewString(),
		ReceivedAt: now,
	}

	switch {
	case u.PreCheckoutQuery != nil:
		q := u.PreCheckoutQuery
		if q.From == nil {
			return domain.Event{}, false
		}
		ev.ConversationID = q.From.ID
		ev.Kind = domain.EventPrecheckoutRequest
		ev.Payment = &domain.PaymentInfo{
			QueryID:        q.ID,
			Currency:       q.Currency,
			TotalAmount:    q.TotalAmount,
			InvoicePayload: q.InvoicePayload,
		}
		return ev, true

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		switch {
		case cq.Message != nil && cq.Message.Chat != nil:
			ev.ConversationID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
		case cq.From != nil:
			ev.ConversationID = cq.From.ID
		default:
			return domain.Event{}, false
		}
		ev.Kind = domain.EventCallbackAction
		ev.CallbackID = cq.ID
		ev.CallbackData = cq.Data
		return ev, true

	case u.Message != nil:
		return decodeMessage(u.Message, ev)
	}

	return domain.Event{}, false
}

func decodeMessage(m *tgbotapi.Message, ev domain.Event) (domain.Event, bool) {
	if m.Chat == nil {
		return domain.Event{}, false
	}
	ev.ConversationID = m.Chat.ID

	switch {
	case m.SuccessfulPayment != nil:
		p := m.SuccessfulPayment
		ev.Kind = domain.EventPaymentOutcome
		ev.Payment = &domain.PaymentInfo{
			Currency:         p.Currency,
			TotalAmount:      p.TotalAmount,
			InvoicePayload:   p.InvoicePayload,
			TelegramChargeID: p.TelegramPaymentChargeID,
			ProviderChargeID: p.ProviderPaymentChargeID,
		}
	case m.IsCommand():
		ev.Kind = domain.EventCommand
		ev.Command = strings.ToLower(m.Command())
	case strings.TrimSpace(m.Text) != "":
		ev.Kind = domain.EventText
		ev.Text = m.Text
	default:
		return domain.Event{}, false
	}
	return ev, true
}
