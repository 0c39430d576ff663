// Package reconcile settles journal entries whose outcome the client never
// learned by asking the payment service again.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payflow/pkg/clock"
	"payflow/pkg/gateway"
	"payflow/pkg/journal"
	"payflow/pkg/logging"
	"payflow/pkg/payment"

	"go.uber.org/zap"
)

// Journal states written for entries settled here.
const (
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Checked   int `json:"checked"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

// Resolved returns the number of entries settled by the pass.
func (r Report) Resolved() int {
	return r.Succeeded + r.Failed
}

// Reconciler queries the status of unresolved entries and records what it
// learns.
type Reconciler struct {
	gateway gateway.StatusQuerier
	store   journal.Store
	clock   clock.Clock
	logger  *logging.Logger
}

// New creates a Reconciler. A nil clock uses the real clock.
func New(gw gateway.StatusQuerier, store journal.Store, c clock.Clock) *Reconciler {
	if c == nil {
		c = clock.Real()
	}
	return &Reconciler{
		gateway: gw,
		store:   store,
		clock:   c,
		logger:  logging.Global().Named("reconcile"),
	}
}

// Run checks up to limit unresolved entries, oldest first. A query that
// fails leaves its entry untouched; an open circuit ends the pass early.
func (r *Reconciler) Run(ctx context.Context, limit int) (Report, error) {
	var report Report

	entries, err := r.store.Unresolved(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("reconcile: list unresolved: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		resp, err := r.gateway.QueryStatus(ctx, e.TransactionID)
		if err != nil {
			report.Errors++
			r.logger.Warn("status query failed",
				logging.TransactionID(e.TransactionID),
				zap.Error(err))
			if errors.Is(err, payment.ErrCircuitOpen) {
				return report, err
			}
			continue
		}

		updated, changed := r.apply(e, resp)
		switch {
		case updated.Resolved && updated.State == StateSucceeded:
			report.Succeeded++
		case updated.Resolved:
			report.Failed++
		default:
			report.Pending++
		}
		if !changed {
			continue
		}

		if err := r.store.Record(ctx, updated); err != nil {
			report.Errors++
			r.logger.Error("failed to record reconciled entry",
				logging.TransactionID(e.TransactionID),
				zap.Error(err))
			continue
		}
		r.logger.Info("entry reconciled",
			logging.TransactionID(e.TransactionID),
			logging.Status(updated.Status),
			zap.Bool("resolved", updated.Resolved))
	}

	return report, nil
}

// apply folds resp into e. Statuses that would move the entry backwards
// are ignored.
func (r *Reconciler) apply(e journal.Entry, resp *gateway.StatusResponse) (journal.Entry, bool) {
	status := resp.Status
	if !payment.CanTransition(e.Status, status) {
		return e, false
	}
	if status == e.Status && !status.IsTerminal() {
		return e, false
	}

	e.Status = status
	e.UpdatedAt = r.clock.Now().UTC()
	switch {
	case status.IsSuccess():
		e.State = StateSucceeded
		e.Resolved = true
		e.Message = ""
	case status.IsFailure():
		e.State = StateFailed
		e.Resolved = true
		e.Message = resp.StatusText()
	}
	return e, true
}

// Loop runs a pass every interval until ctx is done.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.Run(ctx, limit)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("reconciliation pass ended early", zap.Error(err))
			}
			if report.Checked > 0 {
				r.logger.Info("reconciliation pass",
					zap.Int("checked", report.Checked),
					zap.Int("resolved", report.Resolved()),
					zap.Int("errors", report.Errors))
			}
		}
	}
}
