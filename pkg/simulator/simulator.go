// Package simulator is an in-process stand-in for the backend payment
// service. It serves the initiate and status endpoints with the same wire
// format, and settles payments after a configurable number of status
// queries instead of waiting for a real handset.
package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"payflow/pkg/clock"
	"payflow/pkg/gateway"
	"payflow/pkg/logging"
	"payflow/pkg/payment"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Provider is reported in every status response.
const Provider = "mpesa_mozambique"

// Response codes used by the simulated provider.
const (
	CodeAccepted            = "INS-0"
	CodeCancelledByUser     = "INS-25"
	CodeInsufficientBalance = "INS-2006"
)

// Config configures a Simulator.
type Config struct {
	// AuthorizeAfter is the number of status queries before a payment
	// settles (default: 3). Earlier queries report pending, then processing.
	AuthorizeAfter int
	// ExpiresIn is how long the payer has to confirm (default: 5m)
	ExpiresIn time.Duration
	// FeeRate is applied to completed payments, e.g. 0.01 for 1%
	FeeRate decimal.Decimal

	// DeclinedPhones are rejected at initiation with insufficient balance
	DeclinedPhones []string
	// CancelledPhones cancel the prompt on the handset
	CancelledPhones []string
	// SilentPhones never answer the prompt and eventually expire
	SilentPhones []string

	Limits payment.Limits
	Clock  clock.Clock
}

// DefaultConfig returns a simulator that authorizes every payment on the
// third status query.
func DefaultConfig() Config {
	return Config{
		AuthorizeAfter: 3,
		ExpiresIn:      5 * time.Minute,
		Limits:         payment.DefaultLimits(),
	}
}

type record struct {
	tx         payment.Transaction
	thirdParty string
	queries    int
	outcome    payment.Status
	silent     bool
}

// Simulator implements the payment service endpoints. It is safe for
// concurrent use.
type Simulator struct {
	config    Config
	clock     clock.Clock
	declined  map[string]bool
	cancelled map[string]bool
	silent    map[string]bool
	logger    *logging.Logger

	group singleflight.Group

	mu           sync.Mutex
	transactions map[string]*record
	byKey        map[string]string
}

// New creates a Simulator, applying defaults for zero config values.
func New(config Config) *Simulator {
	if config.AuthorizeAfter <= 0 {
		config.AuthorizeAfter = 3
	}
	if config.ExpiresIn <= 0 {
		config.ExpiresIn = 5 * time.Minute
	}
	if config.Limits.Currency == "" {
		config.Limits = payment.DefaultLimits()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &Simulator{
		config:       config,
		clock:        config.Clock,
		declined:     phoneSet(config.DeclinedPhones),
		cancelled:    phoneSet(config.CancelledPhones),
		silent:       phoneSet(config.SilentPhones),
		logger:       logging.Global().Named("simulator"),
		transactions: make(map[string]*record),
		byKey:        make(map[string]string),
	}
}

// Handler returns the HTTP handler serving the payment endpoints.
func (s *Simulator) Handler() http.Handler {
	return s.Router()
}

// Router returns a router with the payment endpoints registered under
// /payments, so it can be mounted as a subrouter.
func (s *Simulator) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/payments/initiate", s.handleInitiate).Methods(http.MethodPost)
	router.HandleFunc("/payments/status/{transaction_id}", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	return router
}

// Len returns the number of transactions created.
func (s *Simulator) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *Simulator) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"provider":     Provider,
		"transactions": s.Len(),
	})
}

func (s *Simulator) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req gateway.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := s.validate(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	if req.IdempotencyKey == "" {
		writeJSON(w, http.StatusOK, s.create(req))
		return
	}

	// Concurrent requests with one key share a single transaction
	v, _, _ := s.group.Do(req.IdempotencyKey, func() (any, error) {
		s.mu.Lock()
		id, ok := s.byKey[req.IdempotencyKey]
		var existing *record
		if ok {
			existing = s.transactions[id]
		}
		s.mu.Unlock()

		if existing != nil {
			s.logger.Info("duplicate initiate", logging.IdempotencyKey(req.IdempotencyKey))
			return s.initiateResponse(existing, existing.tx.Status.Describe()), nil
		}
		return s.create(req), nil
	})
	writeJSON(w, http.StatusOK, v)
}

func (s *Simulator) validate(req gateway.InitiateRequest) error {
	phone, err := payment.NormalizePhone(req.PhoneNumber)
	if err != nil || phone != req.PhoneNumber {
		return errors.New("Invalid phone number format")
	}
	if err := s.config.Limits.Check(req.Amount); err != nil {
		return err
	}
	if err := payment.ValidateAccountReference(req.AccountReference); err != nil {
		return err
	}
	if len(req.IdempotencyKey) > payment.MaxIdempotencyKeyLength {
		return fmt.Errorf("idempotency_key: must be at most %d characters", payment.MaxIdempotencyKeyLength)
	}
	return nil
}

func (s *Simulator) create(req gateway.InitiateRequest) *gateway.InitiateResponse {
	now := s.clock.Now().UTC()
	expires := now.Add(s.config.ExpiresIn)

	rec := &record{
		tx: payment.Transaction{
			ID:               newTransactionID(now),
			ConversationID:   "AG_" + now.Format("20060102") + "_" + compactUUID(20),
			Phone:            req.PhoneNumber,
			Amount:           req.Amount,
			Currency:         s.config.Limits.Currency,
			AccountReference: req.AccountReference,
			Description:      req.Description,
			EntityType:       req.EntityType,
			EntityID:         req.EntityID,
			IdempotencyKey:   req.IdempotencyKey,
			Status:           payment.StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
			ExpiresAt:        &expires,
		},
		thirdParty: compactUUID(12),
		outcome:    payment.StatusCompleted,
		silent:     s.silent[req.PhoneNumber],
	}
	if s.cancelled[req.PhoneNumber] {
		rec.outcome = payment.StatusCancelled
	}

	message := "Payment initiated. Check your phone for the M-Pesa prompt."
	if s.declined[req.PhoneNumber] {
		rec.tx.Status = payment.StatusFailed
		rec.tx.ProviderResponseCode = CodeInsufficientBalance
		rec.tx.ProviderResponseDescription = "Insufficient balance"
		message = "Insufficient balance"
	} else {
		rec.tx.ProviderResponseCode = CodeAccepted
		rec.tx.ProviderResponseDescription = "Request processed successfully"
	}

	s.mu.Lock()
	s.transactions[rec.tx.ID] = rec
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = rec.tx.ID
	}
	resp := s.initiateResponse(rec, message)
	s.mu.Unlock()

	s.logger.Info("transaction created",
		logging.TransactionID(rec.tx.ID),
		logging.Phone(req.PhoneNumber),
		logging.Status(rec.tx.Status),
	)
	return resp
}

func (s *Simulator) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["transaction_id"]

	s.mu.Lock()
	rec, ok := s.transactions[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Transaction not found: "+id)
		return
	}
	s.advanceLocked(rec)
	resp := s.statusResponse(rec)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// advanceLocked moves rec along its scripted lifecycle by one query.
func (s *Simulator) advanceLocked(rec *record) {
	if rec.tx.IsTerminal() {
		return
	}
	rec.queries++
	now := s.clock.Now().UTC()

	update := payment.StatusUpdate{Status: rec.tx.Status, UpdatedAt: now}
	switch {
	case rec.tx.ExpiresAt != nil && now.After(*rec.tx.ExpiresAt):
		update.Status = payment.StatusExpired
		update.ProviderResponseDescription = "Payment request expired"
	case rec.silent:
		return
	case rec.queries >= s.config.AuthorizeAfter:
		update.Status = rec.outcome
		if rec.outcome.IsSuccess() {
			fees := rec.tx.Amount.Mul(s.config.FeeRate).Round(2)
			net := rec.tx.Amount.Sub(fees)
			update.Fees = &fees
			update.NetAmount = &net
			update.CompletedAt = &now
			update.ProviderTransactionID = compactUUID(10)
			update.ProviderResponseDescription = "Request processed successfully"
		} else {
			update.ProviderResponseCode = CodeCancelledByUser
			update.ProviderResponseDescription = "Request cancelled by user"
		}
	case rec.queries > 1:
		update.Status = payment.StatusProcessing
	}

	if err := rec.tx.Apply(update); err != nil {
		s.logger.Warn("scripted update rejected", logging.TransactionID(rec.tx.ID), zap.Error(err))
	}
}

func (s *Simulator) initiateResponse(rec *record, message string) *gateway.InitiateResponse {
	tx := rec.tx
	resp := &gateway.InitiateResponse{
		Success:               !tx.Status.IsFailure(),
		TransactionID:         tx.ID,
		ProviderTransactionID: tx.ProviderTransactionID,
		ConversationID:        tx.ConversationID,
		ThirdPartyReference:   rec.thirdParty,
		Status:                tx.Status,
		Message:               message,
		PhoneNumber:           tx.Phone,
		Amount:                tx.Amount,
		AccountReference:      tx.AccountReference,
		Currency:              tx.Currency,
		ResponseCode:          tx.ProviderResponseCode,
		ResponseDescription:   tx.ProviderResponseDescription,
		CreatedAt:             gateway.NewTimestamp(tx.CreatedAt),
	}
	if tx.ExpiresAt != nil {
		ts := gateway.NewTimestamp(*tx.ExpiresAt)
		resp.ExpiresAt = &ts
	}
	return resp
}

func (s *Simulator) statusResponse(rec *record) *gateway.StatusResponse {
	tx := rec.tx
	description := tx.ProviderResponseDescription
	if description == "" || !tx.IsTerminal() {
		description = tx.Status.Describe()
	}

	resp := &gateway.StatusResponse{
		TransactionID:               tx.ID,
		ConversationID:              tx.ConversationID,
		ThirdPartyReference:         rec.thirdParty,
		ProviderTransactionID:       tx.ProviderTransactionID,
		Status:                      tx.Status,
		StatusDescription:           description,
		Amount:                      tx.Amount,
		Currency:                    tx.Currency,
		Fees:                        tx.Fees,
		NetAmount:                   tx.NetAmount,
		PhoneNumber:                 tx.Phone,
		AccountReference:            tx.AccountReference,
		Description:                 tx.Description,
		EntityType:                  tx.EntityType,
		EntityID:                    tx.EntityID,
		Provider:                    Provider,
		ProviderResponseCode:        tx.ProviderResponseCode,
		ProviderResponseDescription: tx.ProviderResponseDescription,
		CreatedAt:                   gateway.NewTimestamp(tx.CreatedAt),
		UpdatedAt:                   gateway.NewTimestamp(tx.UpdatedAt),
	}
	if tx.CompletedAt != nil {
		ts := gateway.NewTimestamp(*tx.CompletedAt)
		resp.CompletedAt = &ts
	}
	return resp
}

// newTransactionID returns TXN + UTC timestamp + 8 random characters.
func newTransactionID(now time.Time) string {
	return "TXN" + now.Format("20060102150405") + compactUUID(8)
}

func compactUUID(n int) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n > 0 && n < len(id) {
		id = id[:n]
	}
	return id
}

func phoneSet(phones []string) map[string]bool {
	set := make(map[string]bool, len(phones))
	for _, p := range phones {
		if canonical, err := payment.NormalizePhone(p); err == nil {
			set[canonical] = true
		}
	}
	return set
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"detail": map[string]string{
			"error_code": code,
			"message":    message,
		},
	})
}
