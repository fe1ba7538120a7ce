// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultAPIEndpoint is the Telegram Bot API URL format (token, method).
const DefaultAPIEndpoint = "https://api.telegram.org/bot%s/%s"

// Config holds all application configuration.
type Config struct {
	BotToken             string        `validate:"required"`
	PublicBaseURL        string        `validate:"required,url"`
	PaymentProviderToken string        `validate:"omitempty"`
	Port                 string        `validate:"required,numeric"`
	LedgerPath           string        `validate:"required"`
	CatalogPath          string        `validate:"omitempty"`
	APIEndpoint          string        `validate:"required"`
	ActionTimeout        time.Duration `validate:"gt=0"`
	OutboundRate         float64       `validate:"gt=0"`
	LogLevel             string        `validate:"oneof=debug info warn error"`
}

// envNames maps struct fields to the variables they are read from, for
// error messages.
var envNames = map[string]string{
	"BotToken":      "BOT_TOKEN",
	"PublicBaseURL": "PUBLIC_BASE_URL",
	"Port":          "PORT",
	"LedgerPath":    "LEDGER_PATH",
	"APIEndpoint":   "TELEGRAM_API_ENDPOINT",
	"ActionTimeout": "ACTION_TIMEOUT_MS",
	"OutboundRate":  "OUTBOUND_RATE_PER_SEC",
	"LogLevel":      "LOG_LEVEL",
}

var validate = validator.New()

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	baseURL := getEnv("PUBLIC_BASE_URL", "")
	if baseURL == "" {
		// Render exposes the service URL under its own name.
		baseURL = getEnv("RENDER_EXTERNAL_URL", "")
	}

	cfg := &Config{
		BotToken:             strings.TrimSpace(getEnv("BOT_TOKEN", "")),
		PublicBaseURL:        strings.TrimSpace(baseURL),
		PaymentProviderToken: strings.TrimSpace(getEnv("PAYMENT_PROVIDER_TOKEN", "")),
		Port:                 getEnv("PORT", "5000"),
		LedgerPath:           getEnv("LEDGER_PATH", ":memory:"),
		CatalogPath:          getEnv("CATALOG_PATH", ""),
		APIEndpoint:          getEnv("TELEGRAM_API_ENDPOINT", DefaultAPIEndpoint),
		ActionTimeout:        time.Duration(getEnvInt("ACTION_TIMEOUT_MS", 10000)) * time.Millisecond,
		OutboundRate:         float64(getEnvInt("OUTBOUND_RATE_PER_SEC", 25)),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := envNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "url":
			msgs = append(msgs, name+" must be an absolute URL")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", name, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", name, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// WebhookURL is the public URL Telegram posts updates to.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/webhook/" + c.BotToken
}

// InvoicesEnabled reports whether paid plans are charged with native invoices.
func (c *Config) InvoicesEnabled() bool {
	return c.PaymentProviderToken != ""
}

// SlogLevel converts LogLevel for slog.HandlerOptions.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
