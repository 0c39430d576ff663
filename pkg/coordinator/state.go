package coordinator

import (
	"time"

	"payflow/pkg/payment"

	"github.com/shopspring/decimal"
)

// State is the coordinator's position in the payment lifecycle.
type State int

const (
	// StateInput waits for the payer's details.
	StateInput State = iota
	// StateInitiating has an initiate call in flight.
	StateInitiating
	// StateAwaitingAuthorization polls while the payer confirms on the handset.
	StateAwaitingAuthorization
	// StateSucceeded means the payment service reported the payment completed.
	StateSucceeded
	// StateFailed means the payment was declined or could not be initiated.
	StateFailed
	// StateTimedOut means the outcome is unknown to the client. The payment
	// may still settle on the service side.
	StateTimedOut
)

// String returns the snake_case name of the state.
func (s State) String() string {
	switch s {
	case StateInput:
		return "input"
	case StateInitiating:
		return "initiating"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the attempt has ended.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// Retryable reports whether Retry may be called in s.
func (s State) Retryable() bool {
	return s == StateFailed || s == StateTimedOut
}

// Running reports whether a Submit is in progress.
func (s State) Running() bool {
	return s == StateInitiating || s == StateAwaitingAuthorization
}

// Resolved reports whether the client knows how the attempt ended.
func (s State) Resolved() bool {
	return s != StateAwaitingAuthorization && s != StateTimedOut
}

// Intent is what the payer and the surrounding application supply for one
// payment.
type Intent struct {
	// Phone as entered; any of the accepted shapes
	Phone  string
	Amount decimal.Decimal

	// Entity the payment is for, e.g. "appointment" / "24"
	EntityType string
	EntityID   string
	// RequesterID identifies the user paying; part of the idempotency key
	RequesterID string

	Description   string
	CustomerName  string
	CustomerEmail string
}

// Attempt is the per-attempt state owned by a Coordinator.
type Attempt struct {
	State State

	// EnteredPhone is kept across Retry
	EnteredPhone string
	Phone        string
	Amount       decimal.Decimal
	Currency     string
	EntityType   string
	EntityID     string

	IdempotencyKey   string
	AccountReference string
	TransactionID    string

	PollCount int
	Status    payment.Status
	Message   string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Outcome is the result of Submit.
type Outcome struct {
	State         State
	TransactionID string
	Status        payment.Status
	Message       string
	PollCount     int
}

// Succeeded reports whether the payment completed.
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Event types.
const (
	EventStateChanged   = "state_changed"
	EventStatusObserved = "status_observed"
)

// Event describes a state change or an observed status.
type Event struct {
	Type          string
	From          State
	To            State
	Status        payment.Status
	PollCount     int
	TransactionID string
	Message       string
	At            time.Time
}

// Callbacks receive the attempt's progress. OnSuccess and OnFailure fire at
// most once per attempt and never both. All callbacks run on the goroutine
// that called Submit, Retry or Reset, without the coordinator's lock held.
type Callbacks struct {
	OnSuccess func(transactionID string)
	OnFailure func(reason string)
	OnEvent   func(Event)
}
