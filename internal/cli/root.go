// Package cli implements the vitabot command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the vitabot CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vitabot",
		Short: "Vitabot - vitamin deficiency intake bot for Telegram",
		Long: `Vitabot walks Telegram users through a short symptom questionnaire,
suggests likely vitamin or mineral deficiencies and sells follow-up plans.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main logs the error
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSetWebhookCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewPaymentsCommand(opts))

	return cmd
}

// newLogger builds the JSON logger used by every command.
func newLogger(level slog.Level, opts *RootOptions) *slog.Logger {
	if opts != nil && opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
