package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	"BOT_TOKEN", "PUBLIC_BASE_URL", "RENDER_EXTERNAL_URL", "PAYMENT_PROVIDER_TOKEN",
	"PORT", "LEDGER_PATH", "CATALOG_PATH", "TELEGRAM_API_ENDPOINT",
	"ACTION_TIMEOUT_MS", "OUTBOUND_RATE_PER_SEC", "LOG_LEVEL",
}

// clearEnv unsets every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allVars {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("PUBLIC_BASE_URL", "https://bot.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, ":memory:", cfg.LedgerPath)
	assert.Equal(t, DefaultAPIEndpoint, cfg.APIEndpoint)
	assert.Equal(t, 10*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 25.0, cfg.OutboundRate)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.False(t, cfg.InvoicesEnabled())
	assert.Equal(t, "https://bot.example.com/webhook/123:abc", cfg.WebhookURL())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("RENDER_EXTERNAL_URL", "https://vitabot.onrender.com")
	t.Setenv("PAYMENT_PROVIDER_TOKEN", "provider")
	t.Setenv("PORT", "8080")
	t.Setenv("ACTION_TIMEOUT_MS", "2500")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://vitabot.onrender.com/webhook/123:abc", cfg.WebhookURL())
	assert.True(t, cfg.InvoicesEnabled())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.ActionTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing token",
			env:     map[string]string{"PUBLIC_BASE_URL": "https://bot.example.com"},
			wantErr: "BOT_TOKEN is required",
		},
		{
			name:    "missing base url",
			env:     map[string]string{"BOT_TOKEN": "123:abc"},
			wantErr: "PUBLIC_BASE_URL is required",
		},
		{
			name:    "relative base url",
			env:     map[string]string{"BOT_TOKEN": "123:abc", "PUBLIC_BASE_URL": "bot.example.com"},
			wantErr: "PUBLIC_BASE_URL must be an absolute URL",
		},
		{
			name:    "bad port",
			env:     map[string]string{"BOT_TOKEN": "1", "PUBLIC_BASE_URL": "https://x.io", "PORT": "http"},
			wantErr: "PORT is invalid",
		},
		{
			name:    "zero timeout",
			env:     map[string]string{"BOT_TOKEN": "1", "PUBLIC_BASE_URL": "https://x.io", "ACTION_TIMEOUT_MS": "0"},
			wantErr: "ACTION_TIMEOUT_MS is invalid",
		},
		{
			name:    "unknown log level",
			env:     map[string]string{"BOT_TOKEN": "1", "PUBLIC_BASE_URL": "https://x.io", "LOG_LEVEL": "trace"},
			wantErr: "LOG_LEVEL must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
