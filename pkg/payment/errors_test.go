package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, "none"},
		{"validation", &ValidationError{Field: "phone_number", Err: ErrInvalidPhone}, "validation"},
		{"circuit", fmt.Errorf("wrapped: %w", ErrCircuitOpen), "circuit_breaker_open"},
		{"timeout", ErrTimeout, "timeout"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"cancelled", context.Canceled, "cancelled"},
		{"initiation", WrapError(ErrInitiationFailed, "TXN1", "initiate"), "initiation"},
		{"status", ErrStatusQueryFailed, "status_query"},
		{"connection", errors.New("dial tcp: connection refused"), "connection"},
		{"decode", errors.New("failed to decode body"), "serialization"},
		{"other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.expected {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "TXN1", "poll") != nil {
		t.Error("WrapError(nil) should return nil")
	}

	err := WrapError(ErrStatusQueryFailed, "TXN1", "poll")
	if err.Error() != "payment TXN1 poll: payment: status query failed" {
		t.Errorf("WrapError() = %q", err.Error())
	}
	if !errors.Is(err, ErrStatusQueryFailed) {
		t.Error("WrapError should preserve the original error")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "amount", Message: "must be positive", Err: ErrInvalidAmount}
	if err.Error() != "amount: must be positive" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidAmount) {
		t.Error("ValidationError should unwrap to its sentinel")
	}
}

func TestLimits_Check(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"500", false},
		{"1", false},
		{"150000", false},
		{"0", true},
		{"-10", true},
		{"0.5", true},
		{"150000.01", true},
	}

	for _, tt := range tests {
		err := limits.Check(decimal.RequireFromString(tt.amount))
		if (err != nil) != tt.wantErr {
			t.Errorf("Check(%s) error = %v, wantErr %v", tt.amount, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Check(%s) error %v should wrap ErrInvalidAmount", tt.amount, err)
		}
	}
}

func TestLimits_Validate(t *testing.T) {
	if err := DefaultLimits().Validate(); err != nil {
		t.Errorf("default limits invalid: %v", err)
	}

	bad := DefaultLimits()
	bad.MaxAmount = decimal.NewFromFloat(0.5)
	if err := bad.Validate(); err == nil {
		t.Error("max below min should be invalid")
	}

	bad = DefaultLimits()
	bad.Currency = ""
	if err := bad.Validate(); err == nil {
		t.Error("missing currency should be invalid")
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.NewFromInt(2500), "MZN"); got != "MZN 2500.00" {
		t.Errorf("FormatAmount() = %q", got)
	}
}
