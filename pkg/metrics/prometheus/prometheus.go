package prometheus

import (
	"time"

	"payflow/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Gateway
	initiates       *prometheus.CounterVec
	initiateLatency prometheus.Histogram
	statusQueries   *prometheus.CounterVec
	statusLatency   prometheus.Histogram

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Poller and coordinator
	polls        *prometheus.CounterVec
	pollAttempts prometheus.Histogram
	pollDuration prometheus.Histogram
	outcomes     *prometheus.CounterVec

	// Journal
	journalWrites  *prometheus.CounterVec
	journalDropped *prometheus.CounterVec
	journalLatency *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec

	referenceCollisions prometheus.Counter
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		namespace: namespace,
		initiates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "initiate_requests_total",
				Help:      "Total number of payment initiate calls by result",
			},
			[]string{"result"},
		),
		initiateLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "initiate_duration_seconds",
				Help:      "Payment initiate call latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		statusQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_queries_total",
				Help:      "Total number of status queries by observed status",
			},
			[]string{"status"},
		),
		statusLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "status_query_duration_seconds",
				Help:      "Status query latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Total number of polling runs by outcome",
			},
			[]string{"outcome"},
		),
		pollAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_attempts",
				Help:      "Status queries issued per polling run",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 61},
			},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Wall time of a polling run",
				Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
			},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempt_outcomes_total",
				Help:      "Total number of payment attempts by terminal state",
			},
			[]string{"state"},
		),
		journalWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_writes_total",
				Help:      "Total number of journal writes per backend",
			},
			[]string{"backend", "status"},
		),
		journalDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_dropped_total",
				Help:      "Total number of journal writes dropped under backpressure",
			},
			[]string{"backend"},
		),
		journalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "journal_write_duration_seconds",
				Help:      "Journal write latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
			[]string{"backend"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "journal_queue_depth",
				Help:      "Current journal queue depth per backend",
			},
			[]string{"backend"},
		),
		referenceCollisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_reference_collisions_total",
				Help:      "Total number of regenerated account references",
			},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.initiates,
		pc.initiateLatency,
		pc.statusQueries,
		pc.statusLatency,
		pc.circuitOpens,
		pc.circuitState,
		pc.polls,
		pc.pollAttempts,
		pc.pollDuration,
		pc.outcomes,
		pc.journalWrites,
		pc.journalDropped,
		pc.journalLatency,
		pc.queueDepth,
		pc.referenceCollisions,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordInitiate records an initiate call.
func (pc *PrometheusCollector) RecordInitiate(success bool, duration time.Duration) {
	pc.initiates.WithLabelValues(resultLabel(success)).Inc()
	pc.initiateLatency.Observe(duration.Seconds())
}

// RecordStatusQuery records a status query.
func (pc *PrometheusCollector) RecordStatusQuery(status string, success bool, duration time.Duration) {
	if !success {
		status = "error"
	}
	pc.statusQueries.WithLabelValues(status).Inc()
	pc.statusLatency.Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordPoll records a finished polling run.
func (pc *PrometheusCollector) RecordPoll(outcome string, attempts int, duration time.Duration) {
	pc.polls.WithLabelValues(outcome).Inc()
	pc.pollAttempts.Observe(float64(attempts))
	pc.pollDuration.Observe(duration.Seconds())
}

// RecordOutcome records the terminal state of an attempt.
func (pc *PrometheusCollector) RecordOutcome(state string) {
	pc.outcomes.WithLabelValues(state).Inc()
}

// RecordJournalWrite records a journal write.
func (pc *PrometheusCollector) RecordJournalWrite(backend string, success bool, duration time.Duration) {
	pc.journalWrites.WithLabelValues(backend, resultLabel(success)).Inc()
	pc.journalLatency.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordJournalDropped records a dropped journal write.
func (pc *PrometheusCollector) RecordJournalDropped(backend string) {
	pc.journalDropped.WithLabelValues(backend).Inc()
}

// RecordQueueDepth records the current journal queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(backend string, depth int) {
	pc.queueDepth.WithLabelValues(backend).Set(float64(depth))
}

// RecordReferenceCollision records a regenerated account reference.
func (pc *PrometheusCollector) RecordReferenceCollision() {
	pc.referenceCollisions.Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
