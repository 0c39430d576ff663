package journal

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"payflow/pkg/logging"
	"payflow/pkg/metrics"

	"go.uber.org/zap"
)

// Errors returned by async recorder operations.
var (
	// ErrQueueFull is returned when the queue is full and MaxWaitTime exceeded
	ErrQueueFull = errors.New("journal: queue full, entry dropped")

	// ErrRecorderClosed is returned when recording to a closed recorder
	ErrRecorderClosed = errors.New("journal: recorder is closed")

	// ErrFlushTimeout is returned when Flush() times out waiting for the queue to drain
	ErrFlushTimeout = errors.New("journal: flush timeout exceeded")
)

// AsyncRecorder writes entries to a Store from a worker pool so that the
// payment flow never waits on storage. Entries for the same transaction
// always go to the same worker and are written in the order recorded.
type AsyncRecorder struct {
	store      Store
	queues     []chan Entry
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     AsyncRecorderConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	backend    string

	// Statistics (accessed atomically)
	pending int64
	dropped int64
	total   int64
	failed  int64

	// closeMu is held for reading across an enqueue so Close cannot stop
	// the workers while an entry is on its way into a queue.
	closeMu sync.RWMutex
	closed  bool

	// Metrics ticker for periodic queue depth reporting
	metricsTicker *time.Ticker
	metricsStop   chan struct{}
	closeOnce     sync.Once
}

// AsyncRecorderConfig configures the async recorder behavior.
type AsyncRecorderConfig struct {
	// QueueSize is the bounded queue size per worker (default: 256)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is the max time to wait if a queue is full (default: 10ms)
	MaxWaitTime time.Duration

	// WriteTimeout bounds each store write (default: 5s)
	WriteTimeout time.Duration
}

// AsyncRecorderStats provides statistics about async recorder operations.
type AsyncRecorderStats struct {
	// QueueDepth is the current number of entries waiting in all queues
	QueueDepth int

	// Dropped is the total number of entries dropped due to backpressure
	Dropped int64

	// Total is the total number of entries accepted
	Total int64

	// Failed is the total number of store writes that failed
	Failed int64
}

// NewAsyncRecorder creates an async recorder in front of store.
// It starts processing immediately and must be closed with Close().
func NewAsyncRecorder(store Store, config AsyncRecorderConfig) *AsyncRecorder {
	return NewAsyncRecorderWithMetrics(store, config, metrics.NoOpCollector{})
}

// NewAsyncRecorderWithMetrics creates an async recorder with a custom metrics collector.
func NewAsyncRecorderWithMetrics(store Store, config AsyncRecorderConfig, metricsCollector metrics.MetricsCollector) *AsyncRecorder {
	// Apply defaults
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &AsyncRecorder{
		store:         store,
		queues:        make([]chan Entry, config.Workers),
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       metrics.OrNoOp(metricsCollector),
		logger:        logging.Global().Named("journal").Named(store.Name()),
		backend:       store.Name(),
		metricsTicker: time.NewTicker(5 * time.Second),
		metricsStop:   make(chan struct{}),
	}

	for i := range r.queues {
		r.queues[i] = make(chan Entry, config.QueueSize)
		r.wg.Add(1)
		go r.worker(r.queues[i])
	}

	go r.reportMetrics()

	return r
}

// Record enqueues e. If its queue is full, it waits up to MaxWaitTime before
// dropping the entry and returning ErrQueueFull.
func (r *AsyncRecorder) Record(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	queue := r.queues[r.shard(e.TransactionID)]

	timer := time.NewTimer(r.config.MaxWaitTime)
	defer timer.Stop()

	atomic.AddInt64(&r.pending, 1)
	select {
	case queue <- e:
		atomic.AddInt64(&r.total, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&r.pending, -1)
		atomic.AddInt64(&r.dropped, 1)
		r.metrics.RecordJournalDropped(r.backend)
		r.logger.Warn("journal entry dropped",
			logging.TransactionID(e.TransactionID),
			zap.String("state", e.State),
		)
		return ErrQueueFull
	case <-ctx.Done():
		atomic.AddInt64(&r.pending, -1)
		return ctx.Err()
	}
}

func (r *AsyncRecorder) shard(transactionID string) int {
	h := fnv.New32a()
	h.Write([]byte(transactionID))
	return int(h.Sum32() % uint32(len(r.queues)))
}

// worker writes entries from one queue, draining it on shutdown.
func (r *AsyncRecorder) worker(queue chan Entry) {
	defer r.wg.Done()

	for {
		select {
		case e := <-queue:
			r.write(e)
		case <-r.ctx.Done():
			for {
				select {
				case e := <-queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *AsyncRecorder) write(e Entry) {
	defer atomic.AddInt64(&r.pending, -1)

	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := r.store.Record(ctx, e)
	r.metrics.RecordJournalWrite(r.backend, err == nil, time.Since(start))

	if err != nil {
		atomic.AddInt64(&r.failed, 1)
		r.logger.Error("journal write failed",
			logging.TransactionID(e.TransactionID),
			zap.String("state", e.State),
			zap.Error(err),
		)
	}
}

// Flush waits until every accepted entry has been written or timeout passes.
func (r *AsyncRecorder) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if atomic.LoadInt64(&r.pending) == 0 {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}

		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops accepting entries and waits for queued ones to be written.
// Record returns ErrRecorderClosed afterwards. It does not close the
// underlying store.
func (r *AsyncRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.closeMu.Lock()
		r.closed = true
		r.closeMu.Unlock()

		close(r.metricsStop)
		r.metricsTicker.Stop()

		r.cancelFunc()
		r.wg.Wait()
	})
	return nil
}

func (r *AsyncRecorder) queueDepth() int {
	depth := 0
	for _, q := range r.queues {
		depth += len(q)
	}
	return depth
}

// reportMetrics periodically reports queue depth.
func (r *AsyncRecorder) reportMetrics() {
	for {
		select {
		case <-r.metricsTicker.C:
			r.metrics.RecordQueueDepth(r.backend, r.queueDepth())
		case <-r.metricsStop:
			return
		}
	}
}

// Stats returns current statistics about the async recorder.
func (r *AsyncRecorder) Stats() AsyncRecorderStats {
	return AsyncRecorderStats{
		QueueDepth: r.queueDepth(),
		Dropped:    atomic.LoadInt64(&r.dropped),
		Total:      atomic.LoadInt64(&r.total),
		Failed:     atomic.LoadInt64(&r.failed),
	}
}
