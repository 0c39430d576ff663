// Package resilience guards calls to the payment service with a per-call
// timeout and a circuit breaker. It never retries: a failed initiate is
// surfaced to the payer and a failed status query ends the poll.
package resilience

import (
	"context"
	"errors"
	"time"

	"payflow/pkg/gateway"
	"payflow/pkg/logging"
	"payflow/pkg/metrics"
	"payflow/pkg/payment"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Messages shown to the payer when the guard itself rejects a call.
const (
	MessageUnavailable = "payment service temporarily unavailable"
	MessageTimeout     = "payment service did not respond in time"
)

// ResilientGateway wraps a gateway.Gateway with circuit breaker and
// timeout protection.
type ResilientGateway struct {
	gateway gateway.Gateway
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *logging.Logger
}

// NewResilientGateway creates a resilient wrapper around gw.
func NewResilientGateway(gw gateway.Gateway, config Config) *ResilientGateway {
	return NewResilientGatewayWithMetrics(gw, config, metrics.NoOpCollector{})
}

// NewResilientGatewayWithMetrics creates a resilient wrapper with a custom metrics collector.
func NewResilientGatewayWithMetrics(gw gateway.Gateway, config Config, metricsCollector metrics.MetricsCollector) *ResilientGateway {
	if config.Name == "" {
		config.Name = "payment-service"
	}
	logger := logging.Global().Named("resilience").Named(config.Name)

	rg := &ResilientGateway{
		gateway: gw,
		name:    config.Name,
		timeout: config.CallTimeout,
		metrics: metrics.OrNoOp(metricsCollector),
		logger:  logger,
	}

	logger.Info("resilient gateway initialized",
		zap.Duration("call_timeout", config.CallTimeout),
		zap.Uint32("trip_after", config.Breaker.TripAfter),
		zap.Float64("trip_ratio", config.Breaker.TripRatio),
		zap.Duration("open_for", config.Breaker.OpenFor),
	)

	settings := config.Breaker.settings(config.Name)
	settings.IsSuccessful = isSuccessful
	settings.OnStateChange = func(name string, from gobreaker.State, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		rg.metrics.RecordCircuitState(name, circuitState(to))
	}
	rg.cb = gobreaker.NewCircuitBreaker(settings)

	return rg
}

// isSuccessful counts only transport failures and 5xx answers against the
// breaker. Rejections and caller cancellations pass.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return !ge.ServerSide()
	}
	return false
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	default:
		return metrics.CircuitClosed
	}
}

// Name returns the breaker name.
func (rg *ResilientGateway) Name() string {
	return rg.name
}

// State returns the current circuit state.
func (rg *ResilientGateway) State() metrics.CircuitState {
	return circuitState(rg.cb.State())
}

// Initiate calls the wrapped gateway with timeout and circuit breaker protection.
func (rg *ResilientGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
	start := time.Now()

	resp, err := execute(rg, ctx, gateway.OpInitiate, func(ctx context.Context) (*gateway.InitiateResponse, error) {
		return rg.gateway.Initiate(ctx, req)
	})

	rg.metrics.RecordInitiate(err == nil && resp != nil && resp.Success, time.Since(start))
	return resp, err
}

// QueryStatus calls the wrapped gateway with timeout and circuit breaker protection.
func (rg *ResilientGateway) QueryStatus(ctx context.Context, transactionID string) (*gateway.StatusResponse, error) {
	start := time.Now()

	resp, err := execute(rg, ctx, gateway.OpQueryStatus, func(ctx context.Context) (*gateway.StatusResponse, error) {
		return rg.gateway.QueryStatus(ctx, transactionID)
	})

	status := ""
	if resp != nil {
		status = resp.Status.String()
	}
	rg.metrics.RecordStatusQuery(status, err == nil, time.Since(start))
	return resp, err
}

func execute[T any](rg *ResilientGateway, ctx context.Context, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	callCtx := ctx
	if rg.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, rg.timeout)
		defer cancel()
	}

	result, err := rg.cb.Execute(func() (interface{}, error) {
		return call(callCtx)
	})
	if err == nil {
		return result.(T), nil
	}

	// Convert breaker rejections to gateway errors
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		rg.logger.Warn("circuit breaker open - request rejected",
			zap.String("operation", op),
		)
		return zero, &gateway.Error{Op: op, Message: MessageUnavailable, Err: errors.Join(payment.ErrCircuitOpen, err)}
	}

	// Our own deadline, not the caller's
	if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		rg.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.Duration("timeout", rg.timeout),
			zap.Duration("elapsed", time.Since(start)),
		)
		return zero, &gateway.Error{Op: op, Message: MessageTimeout, Err: errors.Join(payment.ErrTimeout, err)}
	}

	rg.logger.Debug("operation failed",
		zap.String("operation", op),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	return zero, err
}
