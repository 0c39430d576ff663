package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common payment errors.
var (
	// ErrInvalidPhone is returned when a payer identifier has none of the accepted shapes
	ErrInvalidPhone = errors.New("payment: invalid phone number")

	// ErrInvalidAmount is returned when an amount is not positive or outside the configured limits
	ErrInvalidAmount = errors.New("payment: invalid amount")

	// ErrInvalidIntent is returned when the entity linkage or reference of a payment is unusable
	ErrInvalidIntent = errors.New("payment: invalid payment intent")

	// ErrInitiationFailed is returned when the payment service rejects or cannot take an initiate request
	ErrInitiationFailed = errors.New("payment: initiation failed")

	// ErrStatusQueryFailed is returned when a status query cannot be answered
	ErrStatusQueryFailed = errors.New("payment: status query failed")

	// ErrCircuitOpen is returned when calls to the payment service are short-circuited
	ErrCircuitOpen = errors.New("payment: circuit breaker open")

	// ErrTimeout is returned when a call to the payment service exceeds its deadline
	ErrTimeout = errors.New("payment: operation timeout")

	// ErrTerminal is returned when a change is applied to a transaction that already settled
	ErrTerminal = errors.New("payment: transaction already terminal")

	// ErrStatusRegression is returned when a status update would move a transaction backwards
	ErrStatusRegression = errors.New("payment: status regression")

	// ErrBusy is returned when an attempt is submitted while another is in flight or unresolved
	ErrBusy = errors.New("payment: attempt already in progress")
)

// ValidationError describes a field that failed local validation. It is
// recovered by the caller and never reaches the payment service.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCircuitOpen reports whether err was caused by an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// ClassifyError returns a low-cardinality classification for metrics labels.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case IsValidation(err):
		return "validation"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_breaker_open"
	case IsTimeout(err):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrInitiationFailed):
		return "initiation"
	case errors.Is(err, ErrStatusQueryFailed):
		return "status_query"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"), strings.Contains(msg, "dial"):
		return "connection"
	case strings.Contains(msg, "decode"), strings.Contains(msg, "unmarshal"):
		return "serialization"
	default:
		return "other"
	}
}

// WrapError adds the transaction and operation to err.
func WrapError(err error, transactionID, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("payment %s %s: %w", transactionID, operation, err)
}
