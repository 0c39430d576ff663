package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"payflow/pkg/journal"
	"payflow/pkg/payment"

	"github.com/shopspring/decimal"
)

func setupTestRedis(t *testing.T) *Store {
	config := DefaultConfig()
	config.Name = "test-redis"
	config.KeyPrefix = fmt.Sprintf("test:payflow:%d:", time.Now().UnixNano())
	config.DialTimeout = 2 * time.Second

	s, err := New(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordGet(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	created := time.Date(2025, 12, 17, 10, 30, 0, 0, time.UTC)

	e := journal.Entry{
		TransactionID:    "TXN1",
		IdempotencyKey:   "appointment-24-7-2025-12-17",
		AccountReference: "APT-24-mj3k2l1a",
		Phone:            payment.MaskPhone("258843330333"),
		Amount:           decimal.NewFromInt(500),
		Currency:         "MZN",
		Status:           payment.StatusProcessing,
		State:            "awaiting_authorization",
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := s.Get(ctx, "TXN1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.IdempotencyKey != e.IdempotencyKey || !got.Amount.Equal(e.Amount) || !got.CreatedAt.Equal(created) {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestStore_Unresolved(t *testing.T) {
	s := setupTestRedis(t)
	ctx := context.Background()
	base := time.Date(2025, 12, 17, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"TXN2", "TXN1", "TXN3"} {
		err := s.Record(ctx, journal.Entry{
			TransactionID: id,
			State:         "timed_out",
			UpdatedAt:     base.Add(time.Duration(len(id)+i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	// Resolving removes it from the set
	if err := s.Record(ctx, journal.Entry{TransactionID: "TXN3", State: "succeeded", Resolved: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := s.Unresolved(ctx, 0)
	if err != nil {
		t.Fatalf("Unresolved failed: %v", err)
	}
	if len(entries) != 2 || entries[0].TransactionID != "TXN2" || entries[1].TransactionID != "TXN1" {
		t.Errorf("Unresolved() = %+v", entries)
	}

	limited, err := s.Unresolved(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Unresolved(1) = %d entries, %v", len(limited), err)
	}
}

func TestNew_NoAddress(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without addresses")
	}
}
