package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Limits holds the amount bounds and currency accepted by the payment service.
type Limits struct {
	// MinAmount is the smallest accepted amount (inclusive)
	MinAmount decimal.Decimal

	// MaxAmount is the largest accepted amount (inclusive); zero disables the bound
	MaxAmount decimal.Decimal

	// Currency is the ISO 4217 code amounts are expressed in
	Currency string
}

// DefaultLimits returns the M-Pesa Mozambique limits: 1 to 150,000 MZN.
func DefaultLimits() Limits {
	return Limits{
		MinAmount: decimal.NewFromInt(1),
		MaxAmount: decimal.NewFromInt(150000),
		Currency:  "MZN",
	}
}

// Validate checks the limits themselves.
func (l Limits) Validate() error {
	if l.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidAmount)
	}
	if !l.MinAmount.IsPositive() {
		return fmt.Errorf("%w: minimum amount must be positive", ErrInvalidAmount)
	}
	if !l.MaxAmount.IsZero() && l.MaxAmount.LessThan(l.MinAmount) {
		return fmt.Errorf("%w: maximum amount below minimum", ErrInvalidAmount)
	}
	return nil
}

// Check validates amount against the limits.
func (l Limits) Check(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive", Err: ErrInvalidAmount}
	}
	if amount.LessThan(l.MinAmount) {
		return &ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("must be at least %s %s", l.MinAmount.String(), l.Currency),
			Err:     ErrInvalidAmount,
		}
	}
	if !l.MaxAmount.IsZero() && amount.GreaterThan(l.MaxAmount) {
		return &ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("cannot exceed %s %s", l.MaxAmount.String(), l.Currency),
			Err:     ErrInvalidAmount,
		}
	}
	return nil
}

// FormatAmount renders amount with its currency, e.g. "MZN 2500.00".
func FormatAmount(amount decimal.Decimal, currency string) string {
	return currency + " " + amount.StringFixed(2)
}
