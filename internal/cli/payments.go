package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/vitabot/internal/store"
)

type paymentsOptions struct {
	ledger string
}

// NewPaymentsCommand creates the payments command.
func NewPaymentsCommand(_ *RootOptions) *cobra.Command {
	opts := &paymentsOptions{}

	cmd := &cobra.Command{
		Use:   "payments <chat-id>",
		Short: "List the payments recorded for a chat",
		Long: `Open the payment ledger from --ledger or LEDGER_PATH and print every
successful payment recorded for the chat, oldest first. Useful when a user
reports a charge that did not unlock a plan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q: %w", args[0], err)
			}

			path := opts.ledger
			if path == "" {
				path = os.Getenv("LEDGER_PATH")
			}
			if path == "" || path == ":memory:" {
				return fmt.Errorf("a file-backed ledger is required (--ledger or LEDGER_PATH)")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}

			ledger, err := store.NewSQLiteLedger(path)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			payments, err := ledger.ListPayments(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			printPayments(cmd.OutOrStdout(), chatID, payments)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ledger, "ledger", "", "ledger SQLite file (default: LEDGER_PATH)")

	return cmd
}

func printPayments(w io.Writer, chatID int64, payments []store.Payment) {
	if len(payments) == 0 {
		_, _ = fmt.Fprintf(w, "No payments recorded for chat %d\n", chatID)
		return
	}
	_, _ = fmt.Fprintf(w, "Payments for chat %d: %d\n\n", chatID, len(payments))
	for _, p := range payments {
		plan := string(p.Plan)
		if plan == "" {
			plan = "-"
		}
		_, _ = fmt.Fprintf(w, "  %s  %-6s %12s  charge=%s\n",
			p.PaidAt.UTC().Format(time.RFC3339), plan, formatUnits(p.AmountUnits, p.Currency), p.TelegramChargeID)
	}
}
