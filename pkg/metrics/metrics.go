package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting payment flow metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory, etc.).
type MetricsCollector interface {
	// Gateway calls
	RecordInitiate(success bool, duration time.Duration)
	RecordStatusQuery(status string, success bool, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)

	// Poller and coordinator
	RecordPoll(outcome string, attempts int, duration time.Duration)
	RecordOutcome(state string)

	// Journal
	RecordJournalWrite(backend string, success bool, duration time.Duration)
	RecordJournalDropped(backend string)
	RecordQueueDepth(backend string, depth int)

	// Account references
	RecordReferenceCollision()
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the service has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is a no-op implementation of MetricsCollector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

func (NoOpCollector) RecordInitiate(success bool, duration time.Duration) {}

func (NoOpCollector) RecordStatusQuery(status string, success bool, duration time.Duration) {}

func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

func (NoOpCollector) RecordPoll(outcome string, attempts int, duration time.Duration) {}

func (NoOpCollector) RecordOutcome(state string) {}

func (NoOpCollector) RecordJournalWrite(backend string, success bool, duration time.Duration) {}

func (NoOpCollector) RecordJournalDropped(backend string) {}

func (NoOpCollector) RecordQueueDepth(backend string, depth int) {}

func (NoOpCollector) RecordReferenceCollision() {}

// OrNoOp returns c, or a NoOpCollector when c is nil.
func OrNoOp(c MetricsCollector) MetricsCollector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}
