// Package messaging executes outbound actions against the Telegram Bot API.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/ashureev/vitabot/internal/domain"
)

// Telegram allows roughly 30 messages per second per bot.
const (
	DefaultRatePerSecond = 25
	defaultBurst         = 5
)

// Config configures a TelegramClient.
type Config struct {
	Token string

	// APIEndpoint is a format string taking the token and the method name.
	// Empty means tgbotapi.APIEndpoint.
	APIEndpoint string

	// ProviderToken is the payment provider credential used for invoices.
	ProviderToken string

	// RatePerSecond caps outbound requests. Zero means DefaultRatePerSecond.
	RatePerSecond float64

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TelegramClient implements the dispatcher's Messenger on top of tgbotapi.
type TelegramClient struct {
	bot           *tgbotapi.BotAPI
	providerToken string
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// NewTelegramClient creates a client and verifies the token with getMe.
func NewTelegramClient(cfg Config) (*TelegramClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	cfg.Logger.Info("[TELEGRAM] Authorized", "username", bot.Self.UserName)

	return &TelegramClient{
		bot:           bot,
		providerToken: cfg.ProviderToken,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RatePerSecond), defaultBurst),
		logger:        cfg.Logger,
	}, nil
}

// Username returns the bot's username as reported by getMe.
func (c *TelegramClient) Username() string {
	return c.bot.Self.UserName
}

// InvoicesEnabled reports whether a payment provider token is configured.
func (c *TelegramClient) InvoicesEnabled() bool {
	return c.providerToken != ""
}

// request waits for the rate limiter and sends one API call. tgbotapi does
// not take a context, so cancellation only applies while waiting.
func (c *TelegramClient) request(ctx context.Context, method string, chattable tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if _, err := c.bot.Request(chattable); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// SendText sends a message, with an inline keyboard when kb is non-empty.
func (c *TelegramClient) SendText(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := inlineKeyboard(kb); ok {
		msg.ReplyMarkup = markup
	}
	return c.request(ctx, "sendMessage", msg)
}

// EditText replaces the text of a message sent earlier.
func (c *TelegramClient) EditText(ctx context.Context, chatID int64, messageID int, text string, kb domain.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if markup, ok := inlineKeyboard(kb); ok {
		edit.ReplyMarkup = &markup
	}
	return c.request(ctx, "editMessageText", edit)
}

// SendInvoice sends a native invoice for a single priced item.
func (c *TelegramClient) SendInvoice(ctx context.Context, chatID int64, inv domain.Invoice) error {
	if !c.InvoicesEnabled() {
		return fmt.Errorf("sendInvoice: payment provider token not configured")
	}
	cfg := tgbotapi.NewInvoice(chatID, inv.Title, inv.Description, inv.Payload, c.providerToken,
		"", inv.Currency, []tgbotapi.LabeledPrice{{Label: inv.Title, Amount: inv.PriceUnits}})
	// A nil slice is encoded as null, which the API rejects.
	cfg.SuggestedTipAmounts = []int{}
	return c.request(ctx, "sendInvoice", cfg)
}

// AnswerCallback acknowledges a button press, optionally with a toast text.
func (c *TelegramClient) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, text))
}

// AnswerPrecheckout confirms or rejects a checkout. Telegram requires an
// answer within ten seconds.
func (c *TelegramClient) AnswerPrecheckout(ctx context.Context, queryID string, ok bool, reason string) error {
	cfg := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
	}
	if !ok {
		cfg.ErrorMessage = reason
	}
	return c.request(ctx, "answerPreCheckoutQuery", cfg)
}

// SetWebhook registers url as the bot's webhook.
func (c *TelegramClient) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	return c.request(ctx, "setWebhook", wh)
}

func inlineKeyboard(kb domain.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
