package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payflow/pkg/api"
	promcollector "payflow/pkg/metrics/prometheus"
	"payflow/pkg/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func opsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Serve the operator API over the journal",
		Long: `Serve health, Prometheus metrics and the unresolved payment attempts of
the configured journal. With --reconcile-every, unresolved attempts are
also settled in the background.`,
		RunE: runOps,
	}

	cmd.Flags().String("addr", "", "Listen address (default: PAYFLOW_OPS_ADDR)")
	cmd.Flags().Duration("reconcile-every", 0, "Interval between reconciliation passes (0 disables)")
	cmd.Flags().Int("reconcile-limit", 100, "Maximum entries checked per pass")

	return cmd
}

func runOps(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := promcollector.NewPrometheusCollector("payflow")
	if err := collector.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()

	gw, err := a.gateway(collector)
	if err != nil {
		return err
	}

	config := api.DefaultServerConfig()
	config.Address = a.config.OpsAddress
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		config.Address = addr
	}
	config.Gatherer = registry
	config.Circuit = gw

	server := api.NewServer(store, collector, config)
	if err := server.Start(); err != nil {
		return err
	}

	if every, _ := cmd.Flags().GetDuration("reconcile-every"); every > 0 {
		limit, _ := cmd.Flags().GetInt("reconcile-limit")
		go reconcile.New(gw, store, nil).Loop(ctx, every, limit)
		a.logger.Info("background reconciliation enabled", zap.Duration("interval", every))
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
