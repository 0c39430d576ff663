package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"payflow/pkg/metrics"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [transaction_id]",
		Short: "Query the status of a payment once",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	cmd.Flags().BoolP("json", "j", false, "Output the raw status response as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	gw, err := a.gateway(metrics.NoOpCollector{})
	if err != nil {
		return err
	}

	resp, err := gw.QueryStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(out, "Transaction %s\n", resp.TransactionID)
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintf(out, "  Status:    %s (%s)\n", resp.Status, resp.StatusText())
	fmt.Fprintf(out, "  Amount:    %s %s\n", resp.Amount.StringFixed(2), resp.Currency)
	if resp.Fees != nil {
		fmt.Fprintf(out, "  Fees:      %s\n", resp.Fees.StringFixed(2))
	}
	if resp.NetAmount != nil {
		fmt.Fprintf(out, "  Net:       %s\n", resp.NetAmount.StringFixed(2))
	}
	fmt.Fprintf(out, "  Reference: %s\n", resp.AccountReference)
	if resp.ProviderTransactionID != "" {
		fmt.Fprintf(out, "  Provider:  %s %s\n", resp.Provider, resp.ProviderTransactionID)
	}
	fmt.Fprintf(out, "  Updated:   %s\n", resp.UpdatedAt.Time.Format("2006-01-02 15:04:05"))
	if resp.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s\n", resp.CompletedAt.Time.Format("2006-01-02 15:04:05"))
	}

	return nil
}
