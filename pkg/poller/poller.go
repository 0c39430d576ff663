// Package poller watches a payment until the service reports a terminal
// status or the attempt budget runs out.
package poller

import (
	"context"
	"time"

	"payflow/pkg/clock"
	"payflow/pkg/gateway"
	"payflow/pkg/logging"
	"payflow/pkg/metrics"

	"go.uber.org/zap"
)

// Defaults give a two minute observation window.
const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 2 * time.Second
)

// Poll outcomes reported to metrics.
const (
	OutcomeTerminal  = "terminal"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Config configures a Poller.
type Config struct {
	// MaxAttempts is the number of queries before the final one (default: 60)
	MaxAttempts int
	// Interval between queries (default: 2s)
	Interval time.Duration
	// OnStatusChange is called with every observed response, terminal or not,
	// including the final one. attempt counts from 1.
	OnStatusChange func(attempt int, resp *gateway.StatusResponse)

	Clock   clock.Clock
	Metrics metrics.MetricsCollector
}

// DefaultConfig returns the default polling configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
	}
}

// Result is the outcome of a poll.
type Result struct {
	// Response is the last observed response; nil if no query succeeded
	Response *gateway.StatusResponse
	// Attempts is the number of queries made
	Attempts int
	// Exhausted is set when the budget ran out and the final query was made
	Exhausted bool
}

// Terminal reports whether the last observed status is terminal.
func (r Result) Terminal() bool {
	return r.Response != nil && r.Response.Status.IsTerminal()
}

// Poller queries one transaction at a time, strictly sequentially.
type Poller struct {
	querier gateway.StatusQuerier
	config  Config
	clock   clock.Clock
	metrics metrics.MetricsCollector
	logger  *logging.Logger
}

// New creates a Poller, applying defaults for zero config values.
func New(querier gateway.StatusQuerier, config Config) *Poller {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &Poller{
		querier: querier,
		config:  config,
		clock:   config.Clock,
		metrics: metrics.OrNoOp(config.Metrics),
		logger:  logging.Global().Named("poller"),
	}
}

// Poll queries transactionID until a terminal status is observed, returning
// it immediately, or until MaxAttempts queries were made, after which one
// final query is made and its result returned whatever it says. A query
// error ends the poll and is returned as is; no query is retried. When ctx
// is done the poll stops and returns ctx.Err().
func (p *Poller) Poll(ctx context.Context, transactionID string) (Result, error) {
	start := p.clock.Now()
	logger := p.logger.With(logging.TransactionID(transactionID))

	var result Result
	finish := func(outcome string, err error) (Result, error) {
		p.metrics.RecordPoll(outcome, result.Attempts, p.clock.Now().Sub(start))
		fields := []zap.Field{
			zap.String("outcome", outcome),
			zap.Int("attempts", result.Attempts),
		}
		if result.Response != nil {
			fields = append(fields, logging.Status(result.Response.Status))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		logger.Info("poll finished", fields...)
		return result, err
	}

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return finish(OutcomeCancelled, err)
		}

		if err := p.query(ctx, transactionID, attempt, &result); err != nil {
			return finish(errorOutcome(ctx), err)
		}
		if result.Terminal() {
			return finish(OutcomeTerminal, nil)
		}

		if err := p.clock.Sleep(ctx, p.config.Interval); err != nil {
			return finish(OutcomeCancelled, err)
		}
	}

	// Budget spent: one last look, returned regardless of terminality
	result.Exhausted = true
	if err := ctx.Err(); err != nil {
		return finish(OutcomeCancelled, err)
	}
	if err := p.query(ctx, transactionID, p.config.MaxAttempts+1, &result); err != nil {
		return finish(errorOutcome(ctx), err)
	}
	if result.Terminal() {
		return finish(OutcomeTerminal, nil)
	}
	return finish(OutcomeExhausted, nil)
}

func (p *Poller) query(ctx context.Context, transactionID string, attempt int, result *Result) error {
	resp, err := p.querier.QueryStatus(ctx, transactionID)
	result.Attempts = attempt
	if err != nil {
		return err
	}

	result.Response = resp
	p.logger.Debug("status observed",
		logging.TransactionID(transactionID),
		logging.Status(resp.Status),
		zap.Int("attempt", attempt),
	)
	if p.config.OnStatusChange != nil {
		p.config.OnStatusChange(attempt, resp)
	}
	return nil
}

func errorOutcome(ctx context.Context) string {
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	return OutcomeError
}
