package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newPendingTransaction() *Transaction {
	return &Transaction{
		ID:       "TXN1",
		Phone:    "258843330333",
		Amount:   decimal.NewFromInt(500),
		Currency: "MZN",
		Status:   StatusPending,
	}
}

func TestTransaction_ApplyForward(t *testing.T) {
	tx := newPendingTransaction()

	if err := tx.Apply(StatusUpdate{Status: StatusProcessing}); err != nil {
		t.Fatalf("Apply(processing) failed: %v", err)
	}

	fees := decimal.RequireFromString("5.00")
	net := decimal.RequireFromString("495.00")
	done := time.Date(2025, 12, 17, 10, 31, 0, 0, time.UTC)
	err := tx.Apply(StatusUpdate{
		Status:                StatusCompleted,
		ProviderTransactionID: "4XDF12345",
		Fees:                  &fees,
		NetAmount:             &net,
		CompletedAt:           &done,
		UpdatedAt:             done,
	})
	if err != nil {
		t.Fatalf("Apply(completed) failed: %v", err)
	}

	if !tx.IsTerminal() {
		t.Error("transaction should be terminal")
	}
	if tx.ProviderTransactionID != "4XDF12345" {
		t.Errorf("ProviderTransactionID = %q", tx.ProviderTransactionID)
	}
	if tx.NetAmount == nil || !tx.NetAmount.Equal(net) {
		t.Errorf("NetAmount = %v, want %v", tx.NetAmount, net)
	}
	if tx.CompletedAt == nil || !tx.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", tx.CompletedAt, done)
	}
}

func TestTransaction_TerminalIsImmutable(t *testing.T) {
	tx := newPendingTransaction()
	if err := tx.Apply(StatusUpdate{Status: StatusFailed, ProviderResponseDescription: "Insufficient balance"}); err != nil {
		t.Fatalf("Apply(failed) failed: %v", err)
	}

	// Repeated observation is fine
	if err := tx.Apply(StatusUpdate{Status: StatusFailed, ProviderResponseDescription: "changed"}); err != nil {
		t.Errorf("repeated terminal status rejected: %v", err)
	}
	if tx.ProviderResponseDescription != "Insufficient balance" {
		t.Errorf("terminal transaction was mutated: %q", tx.ProviderResponseDescription)
	}

	err := tx.Apply(StatusUpdate{Status: StatusCompleted})
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("Apply after terminal = %v, want ErrTerminal", err)
	}
	if tx.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", tx.Status)
	}
}

func TestTransaction_NoRegression(t *testing.T) {
	tx := newPendingTransaction()
	tx.Status = StatusProcessing

	err := tx.Apply(StatusUpdate{Status: StatusPending})
	if !errors.Is(err, ErrStatusRegression) {
		t.Errorf("Apply(pending) = %v, want ErrStatusRegression", err)
	}
	if tx.Status != StatusProcessing {
		t.Errorf("Status = %s, want processing", tx.Status)
	}
}

func TestTransaction_SettlementOnlyOnSuccess(t *testing.T) {
	tx := newPendingTransaction()
	fees := decimal.NewFromInt(1)

	if err := tx.Apply(StatusUpdate{Status: StatusExpired, Fees: &fees}); err != nil {
		t.Fatalf("Apply(expired) failed: %v", err)
	}
	if tx.Fees != nil {
		t.Errorf("Fees populated on a failed transaction: %v", tx.Fees)
	}
}
