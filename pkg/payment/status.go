package payment

import "strings"

// Status is a transaction status as reported by the payment service.
type Status string

// Status vocabulary shared with the payment service.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// ParseStatus normalizes a wire value. Unknown values are kept verbatim so
// they surface in logs; they are treated as non-terminal.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether the status belongs to the vocabulary.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted,
		StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further change is expected after s.
// Statuses outside the vocabulary are never terminal.
func (s Status) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// IsSuccess reports whether s is the terminal success status.
func (s Status) IsSuccess() bool {
	return s == StatusCompleted
}

// IsFailure reports whether s is one of the terminal failure statuses.
func (s Status) IsFailure() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// rank places statuses on the partial order pending < processing < terminal.
// Unknown statuses share rank 0 with pending.
func (s Status) rank() int {
	switch {
	case s.IsTerminal():
		return 2
	case s == StatusProcessing:
		return 1
	default:
		return 0
	}
}

// CanTransition reports whether a transaction in status from may move to to.
// Terminal statuses accept nothing but themselves; otherwise the rank may
// not decrease.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	return to.rank() >= from.rank()
}

// Describe returns a human-readable description of the status.
func (s Status) Describe() string {
	switch s {
	case StatusPending:
		return "Waiting for customer to enter M-Pesa PIN"
	case StatusProcessing:
		return "Payment is being processed"
	case StatusCompleted:
		return "Payment completed successfully"
	case StatusFailed:
		return "Payment failed"
	case StatusCancelled:
		return "Payment was cancelled"
	case StatusExpired:
		return "Payment request expired"
	default:
		return string(s)
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}
