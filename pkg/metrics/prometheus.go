// Package metrics provides Prometheus metrics for the ECL calculation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the engine registers.
type Manager struct {
	namespace string
	registry  prometheus.Registerer

	// Run-level metrics
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsFailed    prometheus.Counter
	runDuration   prometheus.Histogram

	// Per-loan computation metrics
	loansProcessed prometheus.Counter
	loansExcluded  prometheus.Counter
	loanLatency    prometheus.Histogram

	// Model-quality alerts: clamp and fallback are surfaced as warnings,
	// never silent.
	outOfRangeClamps     *prometheus.CounterVec
	missingInputFallback prometheus.Counter

	// Queue metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueRejections  prometheus.Counter

	// Worker metrics
	workerCount  prometheus.Gauge
	workerErrors prometheus.Counter

	// Provision aggregates from the latest committed run
	portfolioECL  *prometheus.GaugeVec
	coverageRatio prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global manager backed by a custom registry so the default Go collectors
// never pollute scrape output.
var (
	customRegistry = prometheus.NewRegistry()          //nolint:gochecknoglobals
	globalManager  = NewManager(WithRegistry(customRegistry)) //nolint:gochecknoglobals
)

// NewManager creates a metrics manager and registers all collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "ifrs9",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)

	m.runsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "runs_started_total",
		Help: "Calculation runs started.",
	})
	m.runsCompleted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "runs_completed_total",
		Help: "Calculation runs committed successfully.",
	})
	m.runsFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "runs_failed_total",
		Help: "Calculation runs aborted by a run-level error.",
	})
	m.runDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "run_duration_seconds",
		Help:    "End-to-end duration of a calculation run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	m.loansProcessed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "loans_processed_total",
		Help: "Loans with a complete set of risk estimates.",
	})
	m.loansExcluded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "loans_excluded_total",
		Help: "Loans flagged and excluded from the aggregate.",
	})
	m.loanLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "loan_compute_milliseconds",
		Help:    "Per-loan PD/LGD/EAD/ECL computation latency.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	m.outOfRangeClamps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "out_of_range_clamps_total",
		Help: "Defensive clamps of PD/LGD values outside their valid range.",
	}, []string{"measure"})
	m.missingInputFallback = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "missing_model_input_fallbacks_total",
		Help: "Loans that fell back to a segment-default PD/LGD estimate.",
	})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "queue_size",
		Help: "Loan work items currently queued.",
	})
	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "queue_capacity",
		Help: "Configured queue capacity.",
	})
	m.queueUtilization = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "queue_utilization",
		Help: "Queue fill ratio between 0 and 1.",
	})
	m.queueEnqueues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "queue_enqueues_total",
		Help: "Work items accepted by the queue.",
	})
	m.queueRejections = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "queue_rejections_total",
		Help: "Work items rejected because the queue was full or closed.",
	})

	m.workerCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "worker_count",
		Help: "Workers in the calculation pool.",
	})
	m.workerErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "worker_errors_total",
		Help: "Per-loan computation failures seen by workers.",
	})

	m.portfolioECL = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "portfolio_ecl_dollars",
		Help: "Portfolio ECL from the latest committed run.",
	}, []string{"scenario"})
	m.coverageRatio = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "portfolio_coverage_ratio",
		Help: "Weighted portfolio coverage ratio from the latest committed run.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "http_request_duration_milliseconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"endpoint", "method"})

	return m
}

// GetRegistry exposes the custom registry for the /metrics handler.
func GetRegistry() *prometheus.Registry { return customRegistry }

// Package-level helpers so call sites never touch the manager directly.

func RecordRunStarted()            { globalManager.runsStarted.Inc() }
func RecordRunCompleted()          { globalManager.runsCompleted.Inc() }
func RecordRunFailed()             { globalManager.runsFailed.Inc() }
func RecordRunDuration(s float64)  { globalManager.runDuration.Observe(s) }
func RecordLoanProcessed()         { globalManager.loansProcessed.Inc() }
func RecordLoanExcluded()          { globalManager.loansExcluded.Inc() }
func RecordLoanLatency(ms float64) { globalManager.loanLatency.Observe(ms) }

func RecordOutOfRangeClamp(measure string) {
	globalManager.outOfRangeClamps.WithLabelValues(measure).Inc()
}
func RecordMissingInputFallback() { globalManager.missingInputFallback.Inc() }

func UpdateQueueSize(n int)            { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int)        { globalManager.queueCapacity.Set(float64(n)) }
func UpdateQueueUtilization(r float64) { globalManager.queueUtilization.Set(r) }
func RecordQueueEnqueue()              { globalManager.queueEnqueues.Inc() }
func RecordQueueRejection()            { globalManager.queueRejections.Inc() }

func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }
func RecordWorkerError()      { globalManager.workerErrors.Inc() }

func UpdatePortfolioECL(scenario string, amount float64) {
	globalManager.portfolioECL.WithLabelValues(scenario).Set(amount)
}
func UpdateCoverageRatio(r float64) { globalManager.coverageRatio.Set(r) }

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}
