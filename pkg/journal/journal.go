// Package journal keeps a client-side record of payment attempts so that an
// operator can reconcile the ones whose outcome the client never learned.
//
// It is not the payment service's transaction store: entries hold only what
// the client observed, with the payer's phone masked.
package journal

import (
	"context"
	"errors"
	"time"

	"payflow/pkg/payment"

	"github.com/shopspring/decimal"
)

// Common journal errors.
var (
	// ErrNotFound is returned when no entry exists for a transaction id
	ErrNotFound = errors.New("journal: entry not found")

	// ErrInvalidEntry is returned when an entry has no transaction id
	ErrInvalidEntry = errors.New("journal: entry has no transaction id")
)

// Entry is the latest known state of one payment attempt.
type Entry struct {
	TransactionID    string          `json:"transaction_id"`
	IdempotencyKey   string          `json:"idempotency_key"`
	AccountReference string          `json:"account_reference"`
	EntityType       string          `json:"entity_type,omitempty"`
	EntityID         string          `json:"entity_id,omitempty"`
	Phone            string          `json:"phone"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`

	Status    payment.Status `json:"status"`
	State     string         `json:"state"`
	Resolved  bool           `json:"resolved"`
	Message   string         `json:"message,omitempty"`
	PollCount int            `json:"poll_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that e can be stored.
func (e Entry) Validate() error {
	if e.TransactionID == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Recorder accepts entries.
type Recorder interface {
	// Record stores e, replacing any entry with the same transaction id.
	Record(ctx context.Context, e Entry) error
}

// Store is a queryable journal backend.
type Store interface {
	Recorder

	// Get returns the entry for transactionID or ErrNotFound.
	Get(ctx context.Context, transactionID string) (Entry, error)

	// Unresolved returns up to limit unresolved entries, least recently
	// updated first. A limit <= 0 returns all of them.
	Unresolved(ctx context.Context, limit int) ([]Entry, error)

	Name() string
	Close() error
}

// Merge returns e with the creation time of prev when e carries none.
// Backends use it so that an update never loses when the attempt began.
func Merge(prev, e Entry) Entry {
	if e.CreatedAt.IsZero() || (!prev.CreatedAt.IsZero() && prev.CreatedAt.Before(e.CreatedAt)) {
		e.CreatedAt = prev.CreatedAt
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.UpdatedAt
	}
	return e
}
