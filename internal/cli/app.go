package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ashureev/vitabot/internal/api"
	"github.com/ashureev/vitabot/internal/catalog"
	"github.com/ashureev/vitabot/internal/config"
	"github.com/ashureev/vitabot/internal/dispatcher"
	"github.com/ashureev/vitabot/internal/engine"
	"github.com/ashureev/vitabot/internal/messaging"
	"github.com/ashureev/vitabot/internal/metrics"
	"github.com/ashureev/vitabot/internal/queue"
	"github.com/ashureev/vitabot/internal/store"
)

// app holds the wired components of a running bot. Nothing is shared through
// globals: the webhook handler and the dispatcher receive the same queue,
// and only the dispatcher touches the session store.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      *queue.EventQueue
	sessions   *store.MemoryStore
	ledger     *store.SQLiteLedger
	telegram   *messaging.TelegramClient
	dispatcher *dispatcher.Dispatcher
	handler    http.Handler
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("Catalog loaded", "symptoms", cat.Len(), "currency", cat.Currency)

	ledger, err := store.NewSQLiteLedger(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	if err := ledger.Ping(ctx); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("ledger health check failed: %w", err)
	}
	logger.Info("Ledger connected", "path", cfg.LedgerPath)

	tg, err := messaging.NewTelegramClient(messaging.Config{
		Token:         cfg.BotToken,
		APIEndpoint:   cfg.APIEndpoint,
		ProviderToken: cfg.PaymentProviderToken,
		RatePerSecond: cfg.OutboundRate,
		Logger:        logger,
	})
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	q := queue.New()
	sessions := store.NewMemoryStore()
	m.TrackQueue(q.Len, sessions.Len)

	if !cfg.InvoicesEnabled() {
		logger.Warn("PAYMENT_PROVIDER_TOKEN not set, paid plans will not send invoices")
	}
	eng := engine.New(cat, engine.Options{InvoicesEnabled: cfg.InvoicesEnabled()})

	d := dispatcher.New(q, sessions, eng, tg, dispatcher.Config{
		ActionTimeout: cfg.ActionTimeout,
		Ledger:        ledger,
		Metrics:       m,
		Logger:        logger,
	})

	router := api.NewRouter(
		api.NewWebhookHandler(q, cfg.BotToken, m, logger),
		api.NewHealthHandler(ledger, q.Len, sessions.Len),
		reg,
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		queue:      q,
		sessions:   sessions,
		ledger:     ledger,
		telegram:   tg,
		dispatcher: d,
		handler:    router,
	}, nil
}

func (a *app) Close() error {
	a.queue.Close()
	return a.ledger.Close()
}
