package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the client's view of one payment intent and its lifecycle.
// Identity and creation facts are fixed when the payment service accepts the
// initiate request; only status updates from the service change it afterwards.
type Transaction struct {
	// Identity
	ID                    string
	ProviderTransactionID string
	ConversationID        string

	// Facts fixed at creation
	Phone            string
	Amount           decimal.Decimal
	Currency         string
	AccountReference string
	Description      string
	EntityType       string
	EntityID         string
	IdempotencyKey   string

	// Mutable facts
	Status                      Status
	ProviderResponseCode        string
	ProviderResponseDescription string
	Fees                        *decimal.Decimal
	NetAmount                   *decimal.Decimal

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	ExpiresAt   *time.Time
}

// StatusUpdate carries the mutable facts observed in one status response.
type StatusUpdate struct {
	Status                      Status
	ProviderTransactionID       string
	ProviderResponseCode        string
	ProviderResponseDescription string
	Fees                        *decimal.Decimal
	NetAmount                   *decimal.Decimal
	UpdatedAt                   time.Time
	CompletedAt                 *time.Time
}

// IsTerminal reports whether the transaction has settled.
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Apply merges u into t. A terminal transaction accepts only an identical
// status (a repeated observation) and is otherwise immutable; a non-terminal
// transaction may not move backwards along the status order.
func (t *Transaction) Apply(u StatusUpdate) error {
	if t.IsTerminal() {
		if u.Status == t.Status {
			return nil
		}
		return fmt.Errorf("%w: %s is %s, got %s", ErrTerminal, t.ID, t.Status, u.Status)
	}
	if !CanTransition(t.Status, u.Status) {
		return fmt.Errorf("%w: %s from %s to %s", ErrStatusRegression, t.ID, t.Status, u.Status)
	}

	t.Status = u.Status
	if u.ProviderTransactionID != "" {
		t.ProviderTransactionID = u.ProviderTransactionID
	}
	if u.ProviderResponseCode != "" {
		t.ProviderResponseCode = u.ProviderResponseCode
	}
	if u.ProviderResponseDescription != "" {
		t.ProviderResponseDescription = u.ProviderResponseDescription
	}
	if !u.UpdatedAt.IsZero() {
		t.UpdatedAt = u.UpdatedAt
	}

	// Settlement figures only exist once the payment completed.
	if u.Status.IsSuccess() {
		t.Fees = u.Fees
		t.NetAmount = u.NetAmount
		t.CompletedAt = u.CompletedAt
	}
	return nil
}
