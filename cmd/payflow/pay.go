package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"payflow/pkg/coordinator"
	"payflow/pkg/metrics/memory"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func payCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Request an M-Pesa payment and wait for the payer to authorize it",
		Long: `Initiate a payment, then poll its status until the payer authorizes
or declines it on the handset, or until the polling budget runs out.

Interrupting the command stops polling and the payment may still settle.
With a persistent journal (PAYFLOW_JOURNAL=redis or postgres) the attempt
stays unresolved there for "payflow reconcile"; the memory backend keeps
no journal across runs.`,
		RunE: runPay,
	}

	cmd.Flags().StringP("phone", "p", "", "Payer phone number (84XXXXXXX, 258XXXXXXXXX or +258XXXXXXXXX)")
	cmd.Flags().StringP("amount", "a", "", "Amount in MZN")
	cmd.Flags().String("entity-type", "appointment", "Type of the entity paid for")
	cmd.Flags().String("entity-id", "", "Id of the entity paid for")
	cmd.Flags().String("requester", "", "Id of the user paying")
	cmd.Flags().StringP("description", "d", "", "Payment description")
	cmd.Flags().String("name", "", "Customer name")
	cmd.Flags().String("email", "", "Customer email")
	cmd.Flags().BoolP("json", "j", false, "Output the outcome as JSON")
	cmd.MarkFlagRequired("phone")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("entity-id")
	cmd.MarkFlagRequired("requester")

	return cmd
}

func runPay(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	amountText, _ := cmd.Flags().GetString("amount")
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return fmt.Errorf("invalid amount %q", amountText)
	}

	intent := coordinator.Intent{Amount: amount}
	intent.Phone, _ = cmd.Flags().GetString("phone")
	intent.EntityType, _ = cmd.Flags().GetString("entity-type")
	intent.EntityID, _ = cmd.Flags().GetString("entity-id")
	intent.RequesterID, _ = cmd.Flags().GetString("requester")
	intent.Description, _ = cmd.Flags().GetString("description")
	intent.CustomerName, _ = cmd.Flags().GetString("name")
	intent.CustomerEmail, _ = cmd.Flags().GetString("email")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := memory.NewMemoryCollector()
	gw, err := a.gateway(collector)
	if err != nil {
		return err
	}

	recorder, closeJournal, err := a.attemptJournal(ctx, collector)
	if err != nil {
		return err
	}
	defer closeJournal()

	out := cmd.OutOrStdout()
	c, err := coordinator.New(coordinator.Config{
		Gateway: gw,
		Poll:    a.config.PollerConfig(),
		Limits:  a.config.Limits,
		Journal: recorder,
		Metrics: collector,
		Callbacks: coordinator.Callbacks{
			OnEvent: func(ev coordinator.Event) {
				if asJSON {
					return
				}
				switch ev.Type {
				case coordinator.EventStateChanged:
					fmt.Fprintf(out, "%s  %s -> %s", ev.At.Format("15:04:05"), ev.From, ev.To)
					if ev.Message != "" {
						fmt.Fprintf(out, "  %s", ev.Message)
					}
					fmt.Fprintln(out)
				case coordinator.EventStatusObserved:
					fmt.Fprintf(out, "%s  poll %d: %s\n", ev.At.Format("15:04:05"), ev.PollCount, ev.Status)
				}
			},
		},
	})
	if err != nil {
		return err
	}

	outcome, err := c.Submit(ctx, intent)
	if err != nil {
		return err
	}

	if asJSON {
		if err := printOutcome(out, c.Snapshot()); err != nil {
			return err
		}
	} else if outcome.TransactionID != "" {
		fmt.Fprintf(out, "Transaction: %s\n", outcome.TransactionID)
	}

	if !outcome.Succeeded() {
		return fmt.Errorf("payment %s: %s", outcome.State, outcome.Message)
	}
	return nil
}

func printOutcome(out io.Writer, attempt coordinator.Attempt) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"state":             attempt.State.String(),
		"transaction_id":    attempt.TransactionID,
		"status":            attempt.Status,
		"message":           attempt.Message,
		"poll_count":        attempt.PollCount,
		"amount":            attempt.Amount,
		"currency":          attempt.Currency,
		"account_reference": attempt.AccountReference,
		"idempotency_key":   attempt.IdempotencyKey,
	})
}
