package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/vitabot/internal/config"
	"github.com/ashureev/vitabot/internal/messaging"
)

// NewSetWebhookCommand creates the set-webhook command.
func NewSetWebhookCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-webhook",
		Short: "Register the webhook URL with Telegram and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.SlogLevel(), rootOpts)

			tg, err := messaging.NewTelegramClient(messaging.Config{
				Token:       cfg.BotToken,
				APIEndpoint: cfg.APIEndpoint,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			if err := tg.SetWebhook(cmd.Context(), cfg.WebhookURL()); err != nil {
				return fmt.Errorf("failed to register webhook: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Webhook registered for @%s at %s/webhook/<token>\n",
				tg.Username(), cfg.PublicBaseURL)
			return nil
		},
	}
}
