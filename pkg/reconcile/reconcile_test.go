package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"payflow/pkg/clock"
	"payflow/pkg/gateway"
	"payflow/pkg/gateway/mock"
	"payflow/pkg/journal"
	journalmemory "payflow/pkg/journal/memory"
	"payflow/pkg/payment"

	"github.com/shopspring/decimal"
)

var base = time.Date(2025, 12, 17, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *journalmemory.Store, entries map[string]payment.Status) {
	t.Helper()
	i := 0
	for id, status := range entries {
		e := journal.Entry{
			TransactionID: id,
			Amount:        decimal.NewFromInt(500),
			Currency:      "MZN",
			Status:        status,
			State:         "timed_out",
			UpdatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(context.Background(), e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		i++
	}
}

func statusGateway(statuses map[string]payment.Status) *mock.MockGateway {
	return &mock.MockGateway{
		QueryStatusFunc: func(ctx context.Context, id string) (*gateway.StatusResponse, error) {
			status, ok := statuses[id]
			if !ok {
				return nil, gateway.NewError("status", 404, payment.ErrStatusQueryFailed)
			}
			return mock.StatusOf(id, status), nil
		},
	}
}

func TestRun_SettlesEntries(t *testing.T) {
	store := journalmemory.New()
	seed(t, store, map[string]payment.Status{
		"TXN-OK":      payment.StatusPending,
		"TXN-DECLINE": payment.StatusProcessing,
		"TXN-WAIT":    payment.StatusPending,
		"TXN-GONE":    payment.StatusPending,
	})
	gw := statusGateway(map[string]payment.Status{
		"TXN-OK":      payment.StatusCompleted,
		"TXN-DECLINE": payment.StatusCancelled,
		"TXN-WAIT":    payment.StatusProcessing,
	})
	fake := clock.NewFake(base.Add(time.Hour))

	report, err := New(gw, store, fake).Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := Report{Checked: 4, Succeeded: 1, Failed: 1, Pending: 1, Errors: 1}
	if report != want {
		t.Errorf("Report = %+v, want %+v", report, want)
	}
	if report.Resolved() != 2 {
		t.Errorf("Resolved() = %d, want 2", report.Resolved())
	}

	ok, _ := store.Get(context.Background(), "TXN-OK")
	if !ok.Resolved || ok.State != StateSucceeded || ok.Status != payment.StatusCompleted {
		t.Errorf("TXN-OK = %+v", ok)
	}
	if !ok.UpdatedAt.Equal(fake.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", ok.UpdatedAt, fake.Now())
	}

	declined, _ := store.Get(context.Background(), "TXN-DECLINE")
	if !declined.Resolved || declined.State != StateFailed || declined.Message != "Payment was cancelled" {
		t.Errorf("TXN-DECLINE = %+v", declined)
	}

	waiting, _ := store.Get(context.Background(), "TXN-WAIT")
	if waiting.Resolved || waiting.Status != payment.StatusProcessing || waiting.State != "timed_out" {
		t.Errorf("TXN-WAIT = %+v", waiting)
	}

	left, _ := store.Unresolved(context.Background(), 0)
	if len(left) != 2 {
		t.Errorf("unresolved after pass = %d, want 2", len(left))
	}
}

func TestRun_IgnoresRegression(t *testing.T) {
	store := journalmemory.New()
	seed(t, store, map[string]payment.Status{"TXN-1": payment.StatusProcessing})
	gw := statusGateway(map[string]payment.Status{"TXN-1": payment.StatusPending})

	report, err := New(gw, store, nil).Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Pending != 1 {
		t.Errorf("Report = %+v", report)
	}

	e, _ := store.Get(context.Background(), "TXN-1")
	if e.Status != payment.StatusProcessing || !e.UpdatedAt.Equal(base) {
		t.Errorf("entry changed on regression: %+v", e)
	}
}

func TestRun_StopsOnOpenCircuit(t *testing.T) {
	store := journalmemory.New()
	seed(t, store, map[string]payment.Status{
		"TXN-1": payment.StatusPending,
		"TXN-2": payment.StatusPending,
	})
	gw := &mock.MockGateway{
		QueryStatusFunc: func(ctx context.Context, id string) (*gateway.StatusResponse, error) {
			return nil, payment.ErrCircuitOpen
		},
	}

	report, err := New(gw, store, nil).Run(context.Background(), 0)
	if !errors.Is(err, payment.ErrCircuitOpen) {
		t.Fatalf("Run() error = %v, want ErrCircuitOpen", err)
	}
	if report.Checked != 1 || gw.QueryCalls() != 1 {
		t.Errorf("Report = %+v, queries = %d", report, gw.QueryCalls())
	}
}

func TestRun_Limit(t *testing.T) {
	store := journalmemory.New()
	seed(t, store, map[string]payment.Status{
		"TXN-1": payment.StatusPending,
		"TXN-2": payment.StatusPending,
		"TXN-3": payment.StatusPending,
	})
	gw := mock.NewMockGateway()

	report, err := New(gw, store, nil).Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Checked != 2 || gw.QueryCalls() != 2 {
		t.Errorf("Report = %+v, queries = %d", report, gw.QueryCalls())
	}
}

func TestRun_Cancelled(t *testing.T) {
	store := journalmemory.New()
	seed(t, store, map[string]payment.Status{"TXN-1": payment.StatusPending})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(mock.NewMockGateway(), store, nil).Run(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
