package main

import (
	"context"
	"fmt"
	"time"

	"payflow/pkg/config"
	"payflow/pkg/gateway"
	"payflow/pkg/journal"
	journalmemory "payflow/pkg/journal/memory"
	"payflow/pkg/journal/postgres"
	"payflow/pkg/journal/redis"
	"payflow/pkg/logging"
	"payflow/pkg/metrics"
	"payflow/pkg/resilience"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every command needs.
type app struct {
	config config.Config
	logger *logging.Logger
}

// loadApp reads the configuration and installs the global logger. Logs go
// to stderr so that command output stays on stdout.
func loadApp(cmd *cobra.Command) (*app, error) {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	cfg.Logging.OutputPaths = []string{"stderr"}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logging.SetGlobal(logger)

	return &app{config: cfg, logger: logger.Named(cmd.Name())}, nil
}

// gateway returns the payment service client behind a circuit breaker.
func (a *app) gateway(collector metrics.MetricsCollector) (*resilience.ResilientGateway, error) {
	client, err := gateway.NewClient(a.config.ClientConfig())
	if err != nil {
		return nil, err
	}
	return resilience.NewResilientGatewayWithMetrics(client, a.config.ResilientConfig(), collector), nil
}

// openStore opens the configured journal backend.
func (a *app) openStore(ctx context.Context) (journal.Store, error) {
	switch a.config.Journal.Backend {
	case config.JournalRedis:
		return redis.New(a.config.RedisConfig())
	case config.JournalPostgres:
		return postgres.New(ctx, a.config.PostgresConfig())
	default:
		return journalmemory.New(), nil
	}
}

// attemptJournal opens the configured journal for recording payment
// attempts. The memory backend dies with the process, so it yields a nil
// recorder and a no-op close.
func (a *app) attemptJournal(ctx context.Context, collector metrics.MetricsCollector) (journal.Recorder, func(), error) {
	if a.config.Journal.Backend == config.JournalMemory {
		a.logger.Debug("journal disabled for memory backend")
		return nil, func() {}, nil
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	rec, closeJournal := a.recorder(store, collector)
	return rec, closeJournal, nil
}

// recorder puts an async recorder in front of store. The returned func
// drains the queue and closes both.
func (a *app) recorder(store journal.Store, collector metrics.MetricsCollector) (journal.Recorder, func()) {
	rec := journal.NewAsyncRecorderWithMetrics(store, journal.AsyncRecorderConfig{}, collector)
	return rec, func() {
		if err := rec.Flush(5 * time.Second); err != nil {
			a.logger.Warn("journal flush incomplete", zap.Error(err))
		}
		rec.Close()
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close journal", zap.Error(err))
		}
	}
}
