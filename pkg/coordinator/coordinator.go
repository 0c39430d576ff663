// Package coordinator drives one payment attempt from the payer's input to
// a terminal outcome: initiate, wait for authorization on the handset, and
// report success, failure or an unknown outcome.
//
// A Coordinator owns exactly one attempt at a time. Coordinators share no
// state, so any number of them may run concurrently for different payments.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"payflow/pkg/clock"
	"payflow/pkg/gateway"
	"payflow/pkg/journal"
	"payflow/pkg/logging"
	"payflow/pkg/metrics"
	"payflow/pkg/payment"
	"payflow/pkg/poller"
	"payflow/pkg/reference"

	"go.uber.org/zap"
)

// MaxDescriptionLength bounds the description sent to the payment service.
const MaxDescriptionLength = 500

// Common coordinator errors.
var (
	// ErrNotRetryable is returned by Retry outside Failed and TimedOut
	ErrNotRetryable = errors.New("coordinator: attempt cannot be retried")

	// ErrNoGateway is returned by New without a gateway
	ErrNoGateway = errors.New("coordinator: gateway is required")
)

// Config configures a Coordinator.
type Config struct {
	// Gateway is the payment service, usually wrapped in a ResilientGateway
	Gateway gateway.Gateway
	// Poll configures status polling (default: 60 queries, 2s apart)
	Poll poller.Config
	// Limits bound the amount (default: payment.DefaultLimits)
	Limits payment.Limits
	// Normalizer canonicalizes phone numbers (default: payment.DefaultNormalizer)
	Normalizer *payment.Normalizer
	// References issues account references; share one across coordinators
	// so their references stay distinct
	References *reference.Generator
	// Journal records every attempt when set
	Journal journal.Recorder

	Clock     clock.Clock
	Metrics   metrics.MetricsCollector
	Callbacks Callbacks
}

// Coordinator is the payment state machine.
type Coordinator struct {
	gateway    gateway.Gateway
	pollConfig poller.Config
	limits     payment.Limits
	normalizer payment.Normalizer
	references *reference.Generator
	journal    journal.Recorder
	clock      clock.Clock
	metrics    metrics.MetricsCollector
	callbacks  Callbacks
	logger     *logging.Logger

	mu       sync.Mutex
	attempt  Attempt
	tx       *payment.Transaction
	notified bool
}

// New creates a Coordinator in StateInput.
func New(config Config) (*Coordinator, error) {
	if config.Gateway == nil {
		return nil, ErrNoGateway
	}
	if config.Limits.Currency == "" {
		config.Limits = payment.DefaultLimits()
	}
	if err := config.Limits.Validate(); err != nil {
		return nil, err
	}
	normalizer := payment.DefaultNormalizer
	if config.Normalizer != nil {
		normalizer = *config.Normalizer
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.References == nil {
		config.References = reference.NewGenerator(reference.Config{
			Clock:   config.Clock,
			Metrics: config.Metrics,
		})
	}
	if config.Poll.Clock == nil {
		config.Poll.Clock = config.Clock
	}
	if config.Poll.Metrics == nil {
		config.Poll.Metrics = config.Metrics
	}

	return &Coordinator{
		gateway:    config.Gateway,
		pollConfig: config.Poll,
		limits:     config.Limits,
		normalizer: normalizer,
		references: config.References,
		journal:    config.Journal,
		clock:      config.Clock,
		metrics:    metrics.OrNoOp(config.Metrics),
		callbacks:  config.Callbacks,
		logger:     logging.Global().Named("coordinator"),
		attempt:    Attempt{State: StateInput},
	}, nil
}

// Snapshot returns a copy of the current attempt.
func (c *Coordinator) Snapshot() Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.State
}

// Transaction returns a copy of the transaction as last reported by the
// payment service, or nil before a successful initiate.
func (c *Coordinator) Transaction() *payment.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil
	}
	tx := *c.tx
	return &tx
}

// Submit validates intent and runs one attempt to a terminal state.
//
// A validation failure returns a *payment.ValidationError, leaves the
// coordinator in StateInput and makes no call. Calling Submit outside
// StateInput returns payment.ErrBusy. Otherwise the error is nil and the
// Outcome tells how the attempt ended. Cancelling ctx stops polling only;
// the payment itself may still settle, so the attempt ends TimedOut.
func (c *Coordinator) Submit(ctx context.Context, intent Intent) (Outcome, error) {
	c.mu.Lock()
	if c.attempt.State != StateInput {
		c.mu.Unlock()
		return Outcome{}, payment.ErrBusy
	}

	c.attempt.EnteredPhone = intent.Phone
	req, err := c.prepareLocked(intent)
	if err != nil {
		c.attempt.Message = err.Error()
		c.mu.Unlock()
		c.logger.Debug("payment rejected locally", zap.Error(err))
		return Outcome{State: StateInput, Message: err.Error()}, err
	}

	c.attempt.Phone = req.PhoneNumber
	c.attempt.Amount = req.Amount
	c.attempt.Currency = c.limits.Currency
	c.attempt.EntityType = req.EntityType
	c.attempt.EntityID = req.EntityID
	c.attempt.IdempotencyKey = req.IdempotencyKey
	c.attempt.AccountReference = req.AccountReference
	c.attempt.StartedAt = c.clock.Now()
	ev := c.moveLocked(StateInitiating, "")
	c.mu.Unlock()
	c.emit(ev)

	logger := c.logger.With(
		logging.Phone(req.PhoneNumber),
		logging.AccountReference(req.AccountReference),
		logging.IdempotencyKey(req.IdempotencyKey),
	)
	logger.Info("initiating payment", logging.Amount(req.Amount, c.limits.Currency))

	resp, err := c.gateway.Initiate(ctx, req)
	if err != nil {
		logger.Warn("initiate failed", zap.Error(err))
		return c.finish(ctx, StateFailed, gateway.Message(err)), nil
	}

	if !resp.Success {
		reason := resp.Message
		if reason == "" {
			reason = gateway.MessageInitiationFailed
		}
		c.adopt(resp, req)
		logger.Info("payment declined", zap.String("reason", reason), zap.String("response_code", resp.ResponseCode))
		return c.finish(ctx, StateFailed, reason), nil
	}
	if resp.TransactionID == "" {
		logger.Warn("initiate accepted without transaction id")
		return c.finish(ctx, StateFailed, gateway.MessageInitiationFailed), nil
	}

	c.adopt(resp, req)
	logger = logger.With(logging.TransactionID(resp.TransactionID))

	switch {
	case resp.Status.IsSuccess():
		logger.Info("payment completed at initiation")
		return c.finish(ctx, StateSucceeded, resp.Status.Describe()), nil
	case resp.Status.IsFailure():
		reason := resp.Message
		if reason == "" {
			reason = resp.Status.Describe()
		}
		return c.finish(ctx, StateFailed, reason), nil
	}

	c.mu.Lock()
	ev = c.moveLocked(StateAwaitingAuthorization, resp.Message)
	entry := c.entryLocked()
	c.mu.Unlock()
	c.emit(ev)
	c.record(ctx, entry)

	return c.await(ctx, resp.TransactionID), nil
}

// await polls until the payment settles or the poll budget runs out.
func (c *Coordinator) await(ctx context.Context, transactionID string) Outcome {
	config := c.pollConfig
	observe := config.OnStatusChange
	config.OnStatusChange = func(attempt int, resp *gateway.StatusResponse) {
		c.observe(ctx, attempt, resp)
		if observe != nil {
			observe(attempt, resp)
		}
	}

	result, err := poller.New(c.gateway, config).Poll(ctx, transactionID)
	switch {
	case err != nil || result.Response == nil:
		c.logger.Warn("status unknown after poll error",
			logging.TransactionID(transactionID),
			zap.Int("attempts", result.Attempts),
			zap.Error(err),
		)
		return c.finish(ctx, StateTimedOut, timedOutMessage(transactionID))
	case result.Response.Status.IsSuccess():
		return c.finish(ctx, StateSucceeded, result.Response.StatusText())
	case result.Response.Status.IsFailure():
		return c.finish(ctx, StateFailed, result.Response.StatusText())
	default:
		return c.finish(ctx, StateTimedOut, timedOutMessage(transactionID))
	}
}

// observe applies one status response to the attempt.
func (c *Coordinator) observe(ctx context.Context, attempt int, resp *gateway.StatusResponse) {
	c.mu.Lock()
	c.attempt.PollCount = attempt
	changed := false
	if c.tx != nil {
		prev := c.tx.Status
		if err := c.tx.Apply(resp.Update()); err != nil {
			c.logger.Warn("ignoring status update",
				logging.TransactionID(c.tx.ID),
				zap.Error(err),
			)
		}
		changed = c.tx.Status != prev
		c.attempt.Status = c.tx.Status
	} else {
		changed = resp.Status != c.attempt.Status
		c.attempt.Status = resp.Status
	}
	ev := Event{
		Type:          EventStatusObserved,
		From:          c.attempt.State,
		To:            c.attempt.State,
		Status:        resp.Status,
		PollCount:     attempt,
		TransactionID: c.attempt.TransactionID,
		Message:       resp.StatusText(),
		At:            c.clock.Now(),
	}
	entry := c.entryLocked()
	c.mu.Unlock()

	c.emit(ev)
	if changed {
		c.record(ctx, entry)
	}
}

// finish moves the attempt to a terminal state and notifies the callbacks.
func (c *Coordinator) finish(ctx context.Context, to State, message string) Outcome {
	c.mu.Lock()
	ev := c.moveLocked(to, message)
	c.attempt.FinishedAt = ev.At
	outcome := Outcome{
		State:         to,
		TransactionID: c.attempt.TransactionID,
		Status:        c.attempt.Status,
		Message:       message,
		PollCount:     c.attempt.PollCount,
	}
	notify := !c.notified
	c.notified = true
	entry := c.entryLocked()
	c.mu.Unlock()

	c.emit(ev)
	c.metrics.RecordOutcome(to.String())
	c.record(ctx, entry)
	c.logger.Info("payment attempt finished",
		logging.TransactionID(outcome.TransactionID),
		zap.Stringer("state", to),
		zap.Int("polls", outcome.PollCount),
		zap.String("message", message),
	)

	if notify {
		if to == StateSucceeded {
			if c.callbacks.OnSuccess != nil {
				c.callbacks.OnSuccess(outcome.TransactionID)
			}
		} else if c.callbacks.OnFailure != nil {
			c.callbacks.OnFailure(message)
		}
	}
	return outcome
}

// Retry returns a failed or timed out attempt to StateInput. Everything
// but the entered phone is cleared; the idempotency key is derived again at
// the next Submit, so it only changes if the date did.
func (c *Coordinator) Retry() error {
	c.mu.Lock()
	if !c.attempt.State.Retryable() {
		state := c.attempt.State
		c.mu.Unlock()
		return fmt.Errorf("%w: attempt is %s", ErrNotRetryable, state)
	}

	entered := c.attempt.EnteredPhone
	ev := c.clearLocked()
	c.attempt.EnteredPhone = entered
	c.mu.Unlock()

	c.emit(ev)
	return nil
}

// Reset starts a fresh attempt, forgetting the entered phone as well.
// It returns payment.ErrBusy while a Submit is running.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	if c.attempt.State.Running() {
		c.mu.Unlock()
		return payment.ErrBusy
	}

	from := c.attempt.State
	ev := c.clearLocked()
	c.mu.Unlock()

	if from != StateInput {
		c.emit(ev)
	}
	return nil
}

func (c *Coordinator) clearLocked() Event {
	from := c.attempt.State
	c.attempt = Attempt{State: StateInput}
	c.tx = nil
	c.notified = false
	return Event{
		Type: EventStateChanged,
		From: from,
		To:   StateInput,
		At:   c.clock.Now(),
	}
}

// prepareLocked validates intent and builds the initiate request.
func (c *Coordinator) prepareLocked(intent Intent) (gateway.InitiateRequest, error) {
	phone, err := c.normalizer.Normalize(intent.Phone)
	if err != nil {
		return gateway.InitiateRequest{}, err
	}
	if err := c.limits.Check(intent.Amount); err != nil {
		return gateway.InitiateRequest{}, err
	}

	entityType := strings.TrimSpace(intent.EntityType)
	entityID := strings.TrimSpace(intent.EntityID)
	requesterID := strings.TrimSpace(intent.RequesterID)
	for _, f := range []struct{ field, value string }{
		{"entity_type", entityType},
		{"entity_id", entityID},
		{"requester_id", requesterID},
	} {
		if f.value == "" {
			return gateway.InitiateRequest{}, &payment.ValidationError{
				Field:   f.field,
				Message: "is required",
				Err:     payment.ErrInvalidIntent,
			}
		}
	}

	ref := c.references.Next(entityType, entityID)
	if err := payment.ValidateAccountReference(ref); err != nil {
		return gateway.InitiateRequest{}, err
	}

	description := payment.SanitizeText(intent.Description, MaxDescriptionLength)
	if description == "" {
		description = fmt.Sprintf("Payment for %s %s", entityType, entityID)
	}

	return gateway.InitiateRequest{
		PhoneNumber:      phone,
		Amount:           intent.Amount,
		AccountReference: ref,
		Description:      description,
		EntityType:       entityType,
		EntityID:         entityID,
		CustomerName:     payment.SanitizeText(intent.CustomerName, 100),
		CustomerEmail:    strings.TrimSpace(intent.CustomerEmail),
		IdempotencyKey:   payment.IdempotencyKey(entityType, entityID, requesterID, c.clock.Now()),
	}, nil
}

// adopt takes the transaction created by the payment service as the
// attempt's view of the payment.
func (c *Coordinator) adopt(resp *gateway.InitiateResponse, req gateway.InitiateRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tx = resp.Transaction(req)
	if c.tx.Currency == "" {
		c.tx.Currency = c.limits.Currency
	}
	c.attempt.TransactionID = resp.TransactionID
	c.attempt.Status = resp.Status
	c.attempt.Currency = c.tx.Currency
}

func (c *Coordinator) moveLocked(to State, message string) Event {
	ev := Event{
		Type:          EventStateChanged,
		From:          c.attempt.State,
		To:            to,
		Status:        c.attempt.Status,
		PollCount:     c.attempt.PollCount,
		TransactionID: c.attempt.TransactionID,
		Message:       message,
		At:            c.clock.Now(),
	}
	c.attempt.State = to
	c.attempt.Message = message
	return ev
}

func (c *Coordinator) entryLocked() journal.Entry {
	a := c.attempt
	createdAt := a.StartedAt
	if c.tx != nil && !c.tx.CreatedAt.IsZero() {
		createdAt = c.tx.CreatedAt
	}
	return journal.Entry{
		TransactionID:    a.TransactionID,
		IdempotencyKey:   a.IdempotencyKey,
		AccountReference: a.AccountReference,
		EntityType:       a.EntityType,
		EntityID:         a.EntityID,
		Phone:            payment.MaskPhone(a.Phone),
		Amount:           a.Amount,
		Currency:         a.Currency,
		Status:           a.Status,
		State:            a.State.String(),
		Resolved:         a.State.Resolved(),
		Message:          a.Message,
		PollCount:        a.PollCount,
		CreatedAt:        createdAt.UTC(),
		UpdatedAt:        c.clock.Now().UTC(),
	}
}

// record journals e. Attempts the service never numbered are not journaled.
func (c *Coordinator) record(ctx context.Context, e journal.Entry) {
	if c.journal == nil || e.TransactionID == "" {
		return
	}
	if err := c.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		c.logger.Warn("failed to journal attempt",
			logging.TransactionID(e.TransactionID),
			zap.String("state", e.State),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) emit(ev Event) {
	if c.callbacks.OnEvent != nil {
		c.callbacks.OnEvent(ev)
	}
}

func timedOutMessage(transactionID string) string {
	return "Payment status unknown. Check your M-Pesa confirmation SMS before paying again. Reference: " + transactionID
}
