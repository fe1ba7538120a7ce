package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/vitabot/internal/config"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	registerWebhook bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.registerWebhook, "register-webhook", false,
		"register PUBLIC_BASE_URL/webhook/<token> with Telegram before serving")

	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, opts *serveOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.SlogLevel(), rootOpts)
	slog.SetDefault(logger)
	slog.Info("Starting server", "port", cfg.Port, "invoices", cfg.InvoicesEnabled())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("Failed to close ledger", "error", closeErr)
		}
	}()

	if opts.registerWebhook {
		if err := a.telegram.SetWebhook(ctx, cfg.WebhookURL()); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		slog.Info("Webhook registered", "base_url", cfg.PublicBaseURL)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		// No more producers; let the dispatcher see a closed queue.
		a.queue.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("Server stopped successfully")
	return nil
}
