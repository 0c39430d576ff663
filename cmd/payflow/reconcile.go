package main

import (
	"fmt"

	"payflow/pkg/metrics"
	"payflow/pkg/reconcile"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Settle journal entries whose outcome is unknown",
		Long: `Query the payment service for every unresolved attempt in the journal,
oldest first, and record the statuses it reports.`,
		RunE: runReconcile,
	}

	cmd.Flags().IntP("limit", "n", 100, "Maximum entries to check")

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	ctx := cmd.Context()
	gw, err := a.gateway(metrics.NoOpCollector{})
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	report, err := reconcile.New(gw, store, nil).Run(ctx, limit)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checked:   %d\n", report.Checked)
	fmt.Fprintf(out, "Succeeded: %d\n", report.Succeeded)
	fmt.Fprintf(out, "Failed:    %d\n", report.Failed)
	fmt.Fprintf(out, "Pending:   %d\n", report.Pending)
	fmt.Fprintf(out, "Errors:    %d\n", report.Errors)

	return err
}
