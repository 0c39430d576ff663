package gateway

import (
	"errors"
	"fmt"

	"payflow/pkg/payment"
)

// Operation names used in Error.Op.
const (
	OpInitiate    = "initiate"
	OpQueryStatus = "query_status"
)

// Fallback messages when the service gives no usable reason.
const (
	MessageInitiationFailed  = "payment initiation failed"
	MessageStatusQueryFailed = "payment status query failed"
)

// Error is the only error type returned by a Gateway. It carries a message
// fit to show the payer and unwraps to payment.ErrInitiationFailed or
// payment.ErrStatusQueryFailed as well as to its cause.
type Error struct {
	Op         string
	StatusCode int // 0 when no response was received
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := "gateway " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{sentinelFor(e.Op)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ServerSide reports whether the failure lies with the service or the
// network rather than with the request.
func (e *Error) ServerSide() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// NewError builds an Error for op with the default message.
func NewError(op string, statusCode int, cause error) *Error {
	return &Error{
		Op:         op,
		StatusCode: statusCode,
		Message:    fallbackMessage(op),
		Err:        cause,
	}
}

// Message returns the payer-facing message of err.
func Message(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func sentinelFor(op string) error {
	if op == OpInitiate {
		return payment.ErrInitiationFailed
	}
	return payment.ErrStatusQueryFailed
}

func fallbackMessage(op string) string {
	if op == OpInitiate {
		return MessageInitiationFailed
	}
	return MessageStatusQueryFailed
}
