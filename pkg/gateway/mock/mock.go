// Package mock provides a Gateway test double.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"payflow/pkg/gateway"
	"payflow/pkg/payment"

	"github.com/shopspring/decimal"
)

// MockGateway is a mock implementation of gateway.Gateway for testing.
// It allows injecting custom behavior for each method and tracks call counts.
type MockGateway struct {
	// Function hooks - set these to customize behavior
	InitiateFunc    func(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error)
	QueryStatusFunc func(ctx context.Context, transactionID string) (*gateway.StatusResponse, error)

	// Call tracking (must use atomic operations for race-free access)
	initiateCalls int64
	queryCalls    int64

	mu       sync.Mutex
	requests []gateway.InitiateRequest
}

// Initiate implements gateway.Gateway.Initiate with optional custom behavior.
func (m *MockGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
	atomic.AddInt64(&m.initiateCalls, 1)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	return Accepted(req, "TXN-MOCK", payment.StatusPending), nil
}

// QueryStatus implements gateway.Gateway.QueryStatus with optional custom behavior.
func (m *MockGateway) QueryStatus(ctx context.Context, transactionID string) (*gateway.StatusResponse, error) {
	atomic.AddInt64(&m.queryCalls, 1)
	if m.QueryStatusFunc != nil {
		return m.QueryStatusFunc(ctx, transactionID)
	}
	return StatusOf(transactionID, payment.StatusPending), nil
}

// InitiateCalls returns the number of Initiate calls (thread-safe).
func (m *MockGateway) InitiateCalls() int {
	return int(atomic.LoadInt64(&m.initiateCalls))
}

// QueryCalls returns the number of QueryStatus calls (thread-safe).
func (m *MockGateway) QueryCalls() int {
	return int(atomic.LoadInt64(&m.queryCalls))
}

// Requests returns every request passed to Initiate, in order.
func (m *MockGateway) Requests() []gateway.InitiateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.InitiateRequest(nil), m.requests...)
}

// NewMockGateway creates a MockGateway that accepts every payment and
// reports it pending forever.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// NewSequenceGateway creates a MockGateway whose initiate returns initial
// for transaction txID and whose status queries walk through statuses,
// repeating the last one once they run out.
func NewSequenceGateway(txID string, initial payment.Status, statuses ...payment.Status) *MockGateway {
	var next int64
	return &MockGateway{
		InitiateFunc: func(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
			return Accepted(req, txID, initial), nil
		},
		QueryStatusFunc: func(ctx context.Context, id string) (*gateway.StatusResponse, error) {
			if len(statuses) == 0 {
				return StatusOf(id, initial), nil
			}
			i := int(atomic.AddInt64(&next, 1)) - 1
			if i >= len(statuses) {
				i = len(statuses) - 1
			}
			return StatusOf(id, statuses[i]), nil
		},
	}
}

// Accepted builds a successful initiate response echoing req.
func Accepted(req gateway.InitiateRequest, txID string, status payment.Status) *gateway.InitiateResponse {
	return &gateway.InitiateResponse{
		Success:          true,
		TransactionID:    txID,
		Status:           status,
		Message:          "Payment initiated. Check your phone for the M-Pesa prompt.",
		PhoneNumber:      req.PhoneNumber,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		Currency:         "MZN",
		ResponseCode:     "INS-0",
		CreatedAt:        gateway.NewTimestamp(time.Now().UTC()),
	}
}

// Declined builds an initiate response with success=false.
func Declined(req gateway.InitiateRequest, message string) *gateway.InitiateResponse {
	resp := Accepted(req, "", payment.StatusFailed)
	resp.Success = false
	resp.Message = message
	resp.ResponseCode = "INS-2006"
	return resp
}

// StatusOf builds a status response for txID.
func StatusOf(txID string, status payment.Status) *gateway.StatusResponse {
	now := gateway.NewTimestamp(time.Now().UTC())
	resp := &gateway.StatusResponse{
		TransactionID:     txID,
		Status:            status,
		StatusDescription: status.Describe(),
		Amount:            decimal.Zero,
		Currency:          "MZN",
		Provider:          "mpesa_mozambique",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if status.IsSuccess() {
		resp.CompletedAt = &now
	}
	return resp
}
