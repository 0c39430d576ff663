package simulator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"payflow/pkg/clock"
	"payflow/pkg/coordinator"
	"payflow/pkg/gateway"
	"payflow/pkg/payment"
	"payflow/pkg/poller"

	"github.com/shopspring/decimal"
)

func setupSimulator(t *testing.T, config Config) (*Simulator, *gateway.Client) {
	t.Helper()

	sim := New(config)
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	client, err := gateway.NewClient(gateway.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return sim, client
}

func initiateRequest(phone, key string) gateway.InitiateRequest {
	return gateway.InitiateRequest{
		PhoneNumber:      phone,
		Amount:           decimal.NewFromInt(2500),
		AccountReference: "APT-24-mj3k2l1a",
		Description:      "Consulta geral",
		EntityType:       "appointment",
		EntityID:         "24",
		IdempotencyKey:   key,
	}
}

func TestSimulator_Lifecycle(t *testing.T) {
	config := DefaultConfig()
	config.FeeRate = decimal.RequireFromString("0.01")
	_, client := setupSimulator(t, config)
	ctx := context.Background()

	resp, err := client.Initiate(ctx, initiateRequest("258843330333", ""))
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	if !resp.Success || resp.Status != payment.StatusPending || resp.ResponseCode != CodeAccepted {
		t.Fatalf("Initiate() = %+v", resp)
	}
	if !strings.HasPrefix(resp.TransactionID, "TXN") || len(resp.TransactionID) != 25 {
		t.Errorf("TransactionID = %q", resp.TransactionID)
	}
	if resp.ExpiresAt == nil || !resp.ExpiresAt.After(resp.CreatedAt.Time) {
		t.Errorf("ExpiresAt = %v", resp.ExpiresAt)
	}

	want := []payment.Status{payment.StatusPending, payment.StatusProcessing, payment.StatusCompleted, payment.StatusCompleted}
	var last *gateway.StatusResponse
	for i, status := range want {
		last, err = client.QueryStatus(ctx, resp.TransactionID)
		if err != nil {
			t.Fatalf("QueryStatus #%d failed: %v", i+1, err)
		}
		if last.Status != status {
			t.Errorf("query #%d status = %v, want %v", i+1, last.Status, status)
		}
	}

	if last.Fees == nil || !last.Fees.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Fees = %v, want 25", last.Fees)
	}
	if last.NetAmount == nil || !last.NetAmount.Equal(decimal.NewFromInt(2475)) {
		t.Errorf("NetAmount = %v, want 2475", last.NetAmount)
	}
	if last.CompletedAt == nil || last.Provider != Provider || last.ProviderTransactionID == "" {
		t.Errorf("completed response = %+v", last)
	}
}

func TestSimulator_Declined(t *testing.T) {
	config := DefaultConfig()
	config.DeclinedPhones = []string{"843330333"}
	_, client := setupSimulator(t, config)
	ctx := context.Background()

	resp, err := client.Initiate(ctx, initiateRequest("258843330333", ""))
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	if resp.Success || resp.Message != "Insufficient balance" || resp.ResponseCode != CodeInsufficientBalance {
		t.Errorf("Initiate() = %+v", resp)
	}

	status, err := client.QueryStatus(ctx, resp.TransactionID)
	if err != nil {
		t.Fatalf("QueryStatus failed: %v", err)
	}
	if status.Status != payment.StatusFailed || status.StatusText() != "Insufficient balance" {
		t.Errorf("QueryStatus() = %+v", status)
	}
}

func TestSimulator_CancelledAndExpired(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 12, 17, 10, 30, 0, 0, time.UTC))
	config := DefaultConfig()
	config.AuthorizeAfter = 1
	config.CancelledPhones = []string{"258841111111"}
	config.SilentPhones = []string{"258842222222"}
	config.Clock = fake
	_, client := setupSimulator(t, config)
	ctx := context.Background()

	cancelled, _ := client.Initiate(ctx, initiateRequest("258841111111", ""))
	status, err := client.QueryStatus(ctx, cancelled.TransactionID)
	if err != nil {
		t.Fatalf("QueryStatus failed: %v", err)
	}
	if status.Status != payment.StatusCancelled || status.ProviderResponseCode != CodeCancelledByUser {
		t.Errorf("cancelled status = %+v", status)
	}

	silent, _ := client.Initiate(ctx, initiateRequest("258842222222", ""))
	status, _ = client.QueryStatus(ctx, silent.TransactionID)
	if status.Status != payment.StatusPending {
		t.Errorf("silent status = %v, want pending", status.Status)
	}

	fake.Advance(6 * time.Minute)
	status, _ = client.QueryStatus(ctx, silent.TransactionID)
	if status.Status != payment.StatusExpired {
		t.Errorf("silent status after expiry = %v, want expired", status.Status)
	}
}

func TestSimulator_Idempotency(t *testing.T) {
	sim, client := setupSimulator(t, DefaultConfig())
	ctx := context.Background()
	req := initiateRequest("258843330333", "appointment-24-7-2025-12-17")

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Initiate(ctx, req)
			if err != nil {
				t.Errorf("Initiate failed: %v", err)
				return
			}
			ids[i] = resp.TransactionID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("transaction ids differ: %v", ids)
		}
	}
	if sim.Len() != 1 {
		t.Errorf("Len() = %d, want 1", sim.Len())
	}

	// A different key is a different payment
	other := req
	other.IdempotencyKey = "appointment-24-7-2025-12-18"
	resp, _ := client.Initiate(ctx, other)
	if resp.TransactionID == ids[0] || sim.Len() != 2 {
		t.Errorf("new key reused transaction %q", resp.TransactionID)
	}
}

func TestSimulator_Errors(t *testing.T) {
	_, client := setupSimulator(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*gateway.InitiateRequest)
		message string
	}{
		{"national phone", func(r *gateway.InitiateRequest) { r.PhoneNumber = "843330333" }, "Invalid phone number format"},
		{"zero amount", func(r *gateway.InitiateRequest) { r.Amount = decimal.Zero }, "amount: must be positive"},
		{"long reference", func(r *gateway.InitiateRequest) { r.AccountReference = strings.Repeat("A", 21) }, "account_reference: must be at most 20 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := initiateRequest("258843330333", "")
			tt.mutate(&req)

			_, err := client.Initiate(ctx, req)
			var ge *gateway.Error
			if !errors.As(err, &ge) {
				t.Fatalf("Initiate() error = %v, want *gateway.Error", err)
			}
			if ge.StatusCode != http.StatusUnprocessableEntity || ge.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v", ge)
			}
			if ge.Message != tt.message {
				t.Errorf("Message = %q, want %q", ge.Message, tt.message)
			}
		})
	}

	_, err := client.QueryStatus(ctx, "TXN-missing")
	var ge *gateway.Error
	if !errors.As(err, &ge) || ge.StatusCode != http.StatusNotFound {
		t.Fatalf("QueryStatus(missing) error = %v", err)
	}
	if ge.Message != "Transaction not found: TXN-missing" || !errors.Is(err, payment.ErrStatusQueryFailed) {
		t.Errorf("error = %+v", ge)
	}
}

func TestSimulator_Health(t *testing.T) {
	sim := New(DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	sim.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSimulator_CoordinatorRoundTrip(t *testing.T) {
	config := DefaultConfig()
	config.AuthorizeAfter = 4
	config.DeclinedPhones = []string{"258849999999"}
	_, client := setupSimulator(t, config)

	run := func(phone string) (coordinator.Outcome, []string) {
		var reasons []string
		c, err := coordinator.New(coordinator.Config{
			Gateway: client,
			Poll:    poller.Config{MaxAttempts: 10, Interval: time.Second},
			Clock:   clock.NewFake(time.Now()),
			Callbacks: coordinator.Callbacks{
				OnFailure: func(reason string) { reasons = append(reasons, reason) },
			},
		})
		if err != nil {
			t.Fatalf("coordinator.New failed: %v", err)
		}
		outcome, err := c.Submit(context.Background(), coordinator.Intent{
			Phone:       phone,
			Amount:      decimal.NewFromInt(500),
			EntityType:  "appointment",
			EntityID:    "24",
			RequesterID: "7",
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		return outcome, reasons
	}

	outcome, _ := run("843330333")
	if outcome.State != coordinator.StateSucceeded || outcome.PollCount != 4 {
		t.Errorf("Outcome = %+v, want succeeded after 4 polls", outcome)
	}

	outcome, reasons := run("0849999999")
	if outcome.State != coordinator.StateFailed || len(reasons) != 1 || reasons[0] != "Insufficient balance" {
		t.Errorf("Outcome = %+v, reasons = %v", outcome, reasons)
	}
}
