package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"payflow/pkg/payment"

	"github.com/shopspring/decimal"
)

// InitiateRequest is the body of POST /payments/initiate.
type InitiateRequest struct {
	PhoneNumber      string          `json:"phone_number"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"account_reference"`
	Description      string          `json:"description,omitempty"`
	EntityType       string          `json:"entity_type,omitempty"`
	EntityID         string          `json:"entity_id,omitempty"`
	CustomerName     string          `json:"customer_name,omitempty"`
	CustomerEmail    string          `json:"customer_email,omitempty"`
	IdempotencyKey   string          `json:"idempotency_key,omitempty"`
}

// InitiateResponse is returned by POST /payments/initiate.
type InitiateResponse struct {
	Success               bool           `json:"success"`
	TransactionID         string         `json:"transaction_id"`
	ProviderTransactionID string         `json:"provider_transaction_id,omitempty"`
	ConversationID        string         `json:"conversation_id,omitempty"`
	ThirdPartyReference   string         `json:"third_party_reference,omitempty"`
	Status                payment.Status `json:"status"`
	Message               string         `json:"message"`

	PhoneNumber      string          `json:"phone_number"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"account_reference"`
	Currency         string          `json:"currency"`

	ResponseCode        string `json:"response_code,omitempty"`
	ResponseDescription string `json:"response_description,omitempty"`

	CreatedAt Timestamp  `json:"created_at"`
	ExpiresAt *Timestamp `json:"expires_at,omitempty"`
}

// Transaction builds the client's view of the transaction the service
// created for req.
func (r *InitiateResponse) Transaction(req InitiateRequest) *payment.Transaction {
	tx := &payment.Transaction{
		ID:                          r.TransactionID,
		ProviderTransactionID:       r.ProviderTransactionID,
		ConversationID:              r.ConversationID,
		Phone:                       req.PhoneNumber,
		Amount:                      req.Amount,
		Currency:                    r.Currency,
		AccountReference:            req.AccountReference,
		Description:                 req.Description,
		EntityType:                  req.EntityType,
		EntityID:                    req.EntityID,
		IdempotencyKey:              req.IdempotencyKey,
		Status:                      r.Status,
		ProviderResponseCode:        r.ResponseCode,
		ProviderResponseDescription: r.ResponseDescription,
		CreatedAt:                   r.CreatedAt.Time,
		UpdatedAt:                   r.CreatedAt.Time,
	}
	if r.PhoneNumber != "" {
		tx.Phone = r.PhoneNumber
	}
	if r.AccountReference != "" {
		tx.AccountReference = r.AccountReference
	}
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.Time
		tx.ExpiresAt = &t
	}
	return tx
}

// StatusResponse is returned by GET /payments/status/{transaction_id}.
type StatusResponse struct {
	TransactionID         string         `json:"transaction_id"`
	ConversationID        string         `json:"conversation_id,omitempty"`
	ThirdPartyReference   string         `json:"third_party_reference,omitempty"`
	ProviderTransactionID string         `json:"provider_transaction_id,omitempty"`
	Status                payment.Status `json:"status"`
	StatusDescription     string         `json:"status_description"`

	Amount    decimal.Decimal  `json:"amount"`
	Currency  string           `json:"currency"`
	Fees      *decimal.Decimal `json:"fees,omitempty"`
	NetAmount *decimal.Decimal `json:"net_amount,omitempty"`

	PhoneNumber      string `json:"phone_number"`
	AccountReference string `json:"account_reference"`
	Description      string `json:"description,omitempty"`
	EntityType       string `json:"entity_type,omitempty"`
	EntityID         string `json:"entity_id,omitempty"`

	Provider                    string `json:"provider"`
	ProviderResponseCode        string `json:"provider_response_code,omitempty"`
	ProviderResponseDescription string `json:"provider_response_description,omitempty"`

	CreatedAt   Timestamp  `json:"created_at"`
	UpdatedAt   Timestamp  `json:"updated_at"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
}

// Update extracts the mutable facts of the response.
func (r *StatusResponse) Update() payment.StatusUpdate {
	u := payment.StatusUpdate{
		Status:                      r.Status,
		ProviderTransactionID:       r.ProviderTransactionID,
		ProviderResponseCode:        r.ProviderResponseCode,
		ProviderResponseDescription: r.ProviderResponseDescription,
		Fees:                        r.Fees,
		NetAmount:                   r.NetAmount,
		UpdatedAt:                   r.UpdatedAt.Time,
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.Time
		u.CompletedAt = &t
	}
	return u
}

// StatusText returns the service's description of the status, or the
// local description when the service sent none.
func (r *StatusResponse) StatusText() string {
	if r.StatusDescription != "" {
		return r.StatusDescription
	}
	return r.Status.Describe()
}

// naive layouts carry no zone; they are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is a time that decodes both RFC 3339 and zone-less ISO 8601
// values, as emitted by services that store naive UTC datetimes.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses s with the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("gateway: unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("gateway: timestamp must be a string: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
