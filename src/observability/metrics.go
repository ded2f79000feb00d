package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stake-plus/commons/src/shared/gov"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commons",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "commons",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commons",
			Subsystem: "protocol",
			Name:      "transitions_total",
			Help:      "Committed ledger entries by kind.",
		},
		[]string{"kind"},
	)
	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commons",
			Subsystem: "protocol",
			Name:      "rejections_total",
			Help:      "Operations rejected with a protocol error, by operation and code.",
		},
		[]string{"operation", "code"},
	)
	conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commons",
			Subsystem: "store",
			Name:      "conflicts_total",
			Help:      "Optimistic-lock conflicts, by outcome (retried or exhausted).",
		},
		[]string{"outcome"},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commons",
			Subsystem: "treasury",
			Name:      "transfers_total",
			Help:      "Funding transfers by backend and success.",
		},
		[]string{"backend", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, transitions, rejections, conflicts, transfers)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransition(kind string) {
	RegisterMetrics()
	transitions.WithLabelValues(kind).Inc()
}

func RecordRejection(operation, code string) {
	RegisterMetrics()
	rejections.WithLabelValues(operation, code).Inc()
}

func RecordConflict(exhausted bool) {
	RegisterMetrics()
	outcome := "retried"
	if exhausted {
		outcome = "exhausted"
	}
	conflicts.WithLabelValues(outcome).Inc()
}

func RecordTransfer(backend string, success bool) {
	RegisterMetrics()
	transfers.WithLabelValues(backend, strconv.FormatBool(success)).Inc()
}

// RecordOutcome counts err as a rejection of operation when it carries a
// protocol error code.
func RecordOutcome(operation string, err error) {
	if err == nil {
		return
	}
	if e, ok := gov.AsError(err); ok {
		RecordRejection(operation, e.Code)
	}
}
