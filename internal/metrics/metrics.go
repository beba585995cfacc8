package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfsuite"

var (
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Document operations by operation and result (completed, failed, cancelled)",
		},
		[]string{"op", "result"},
	)

	operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of document operations, load to serialize",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_processed_total",
			Help:      "Pages in the output of completed operations",
		},
		[]string{"op"},
	)

	outputBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of serialized artifacts",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		},
		[]string{"op"},
	)

	jobsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_inflight",
			Help:      "Jobs currently running on this instance",
		},
	)

	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed writes to external stores by store (records, artifacts, cancel)",
		},
		[]string{"store"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "AI gateway requests by task and result",
		},
		[]string{"task", "result"},
	)
)

var once sync.Once

// Init registers collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(operations, operationLatency, pagesProcessed, outputBytes, jobsInflight, storeErrors, gatewayRequests)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveOperation(op, result string, dur time.Duration) {
	operations.WithLabelValues(op, result).Inc()
	operationLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func AddPages(op string, n int) {
	if n > 0 {
		pagesProcessed.WithLabelValues(op).Add(float64(n))
	}
}

func ObserveOutput(op string, size int) { outputBytes.WithLabelValues(op).Observe(float64(size)) }

func JobStarted()  { jobsInflight.Inc() }
func JobFinished() { jobsInflight.Dec() }

func IncStoreError(store string) { storeErrors.WithLabelValues(store).Inc() }

func ObserveGateway(task, result string) { gatewayRequests.WithLabelValues(task, result).Inc() }
