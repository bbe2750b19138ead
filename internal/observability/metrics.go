package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	reconciliationCounter  *prometheus.CounterVec
	streamEventCounter     *prometheus.CounterVec
	allocatorRefillCounter *prometheus.CounterVec
	balanceConflictCounter prometheus.Counter
	idempotencyCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		reconciliationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconciliation_outcomes_total",
			Help: "Reconciliation fold outcomes by resulting status",
		}, []string{"status"})

		streamEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_stream_events_total",
			Help: "Stream events consumed, by result",
		}, []string{"result"})

		allocatorRefillCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sequence_range_refills_total",
			Help: "Range reservations performed by id allocators",
		}, []string{"prefix"})

		balanceConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "balance_version_conflicts_total",
			Help: "Optimistic-lock conflicts observed while updating balances",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			reconciliationCounter,
			streamEventCounter,
			allocatorRefillCounter,
			balanceConflictCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementReconciliation(status string) {
	if reconciliationCounter == nil {
		return
	}
	reconciliationCounter.WithLabelValues(status).Inc()
}

func IncrementStreamEvent(result string) {
	if streamEventCounter == nil {
		return
	}
	streamEventCounter.WithLabelValues(result).Inc()
}

func IncrementAllocatorRefill(prefix string) {
	if allocatorRefillCounter == nil {
		return
	}
	allocatorRefillCounter.WithLabelValues(prefix).Inc()
}

func IncrementBalanceConflict() {
	if balanceConflictCounter == nil {
		return
	}
	balanceConflictCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
