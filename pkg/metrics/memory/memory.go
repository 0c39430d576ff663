package memory

import (
	"sync"
	"time"

	"payflow/pkg/metrics"
)

// MemoryCollector implements MetricsCollector for in-memory testing.
type MemoryCollector struct {
	mu sync.RWMutex

	initiates        int64
	initiateFailures int64
	initiateLatency  []time.Duration

	statusQueries       int64
	statusQueryFailures int64
	statusesSeen        map[string]int64

	circuitStates map[string]metrics.CircuitState
	circuitOpens  map[string]int64

	polls        map[string]int64
	pollAttempts []int

	outcomes map[string]int64

	journal map[string]*JournalMetrics

	referenceCollisions int64
}

// JournalMetrics holds metrics for a single journal backend.
type JournalMetrics struct {
	Writes     int64
	Errors     int64
	Dropped    int64
	QueueDepth int
	Latencies  []time.Duration
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.resetLocked()
	return mc
}

func (mc *MemoryCollector) resetLocked() {
	mc.initiates = 0
	mc.initiateFailures = 0
	mc.initiateLatency = nil
	mc.statusQueries = 0
	mc.statusQueryFailures = 0
	mc.statusesSeen = make(map[string]int64)
	mc.circuitStates = make(map[string]metrics.CircuitState)
	mc.circuitOpens = make(map[string]int64)
	mc.polls = make(map[string]int64)
	mc.pollAttempts = nil
	mc.outcomes = make(map[string]int64)
	mc.journal = make(map[string]*JournalMetrics)
	mc.referenceCollisions = 0
}

// journalLocked returns the metrics for backend, creating them if needed.
// Callers must hold mc.mu.
func (mc *MemoryCollector) journalLocked(backend string) *JournalMetrics {
	jm, ok := mc.journal[backend]
	if !ok {
		jm = &JournalMetrics{}
		mc.journal[backend] = jm
	}
	return jm
}

// RecordInitiate records an initiate call.
func (mc *MemoryCollector) RecordInitiate(success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.initiates++
	if !success {
		mc.initiateFailures++
	}
	mc.initiateLatency = append(mc.initiateLatency, duration)
}

// RecordStatusQuery records a status query and the status it observed.
func (mc *MemoryCollector) RecordStatusQuery(status string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.statusQueries++
	if !success {
		mc.statusQueryFailures++
		return
	}
	mc.statusesSeen[status]++
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	old := mc.circuitStates[name]
	mc.circuitStates[name] = state

	// Count transitions to open
	if old != metrics.CircuitOpen && state == metrics.CircuitOpen {
		mc.circuitOpens[name]++
	}
}

// RecordPoll records a finished polling run.
func (mc *MemoryCollector) RecordPoll(outcome string, attempts int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.polls[outcome]++
	mc.pollAttempts = append(mc.pollAttempts, attempts)
}

// RecordOutcome records the terminal state of an attempt.
func (mc *MemoryCollector) RecordOutcome(state string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.outcomes[state]++
}

// RecordJournalWrite records a journal write.
func (mc *MemoryCollector) RecordJournalWrite(backend string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	jm := mc.journalLocked(backend)
	jm.Writes++
	if !success {
		jm.Errors++
	}
	jm.Latencies = append(jm.Latencies, duration)
}

// RecordJournalDropped records a journal write dropped under backpressure.
func (mc *MemoryCollector) RecordJournalDropped(backend string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.journalLocked(backend).Dropped++
}

// RecordQueueDepth records the current journal queue depth.
func (mc *MemoryCollector) RecordQueueDepth(backend string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.journalLocked(backend).QueueDepth = depth
}

// RecordReferenceCollision records a regenerated account reference.
func (mc *MemoryCollector) RecordReferenceCollision() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.referenceCollisions++
}

// Snapshot is a copy of the collected metrics.
type Snapshot struct {
	Initiates           int64
	InitiateFailures    int64
	StatusQueries       int64
	StatusQueryFailures int64
	StatusesSeen        map[string]int64
	CircuitStates       map[string]metrics.CircuitState
	CircuitOpens        map[string]int64
	Polls               map[string]int64
	PollAttempts        []int
	Outcomes            map[string]int64
	Journal             map[string]JournalMetrics
	ReferenceCollisions int64
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Snapshot{
		Initiates:           mc.initiates,
		InitiateFailures:    mc.initiateFailures,
		StatusQueries:       mc.statusQueries,
		StatusQueryFailures: mc.statusQueryFailures,
		StatusesSeen:        copyCounts(mc.statusesSeen),
		CircuitStates:       make(map[string]metrics.CircuitState, len(mc.circuitStates)),
		CircuitOpens:        copyCounts(mc.circuitOpens),
		Polls:               copyCounts(mc.polls),
		PollAttempts:        append([]int(nil), mc.pollAttempts...),
		Outcomes:            copyCounts(mc.outcomes),
		Journal:             make(map[string]JournalMetrics, len(mc.journal)),
		ReferenceCollisions: mc.referenceCollisions,
	}
	for name, state := range mc.circuitStates {
		s.CircuitStates[name] = state
	}
	for backend, jm := range mc.journal {
		c := *jm
		c.Latencies = append([]time.Duration(nil), jm.Latencies...)
		s.Journal[backend] = c
	}
	return s
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.resetLocked()
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
