// Package metrics provides Prometheus metrics for the badge engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Evaluation
	evaluations             *prometheus.CounterVec
	evaluationLatency       prometheus.Histogram
	metricsLatency          prometheus.Histogram
	unrecognizedRequirement *prometheus.CounterVec

	// Evaluation cache
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheEntries prometheus.Gauge
	cacheErrors  *prometheus.CounterVec

	// Ledger
	awards      *prometheus.CounterVec
	revocations *prometheus.CounterVec

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec
	repositoryErrors       *prometheus.CounterVec

	// Jobs
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected prometheus.Counter
	jobsProcessed *prometheus.CounterVec
	jobLatency    *prometheus.HistogramVec
	workerCount   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process registry served on /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	customRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager registered on the configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "wolfinder",
		subsystem:        "badges",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.evaluations = m.counterVec("evaluations_total",
		"Badge evaluation batches by source (cache or computed)", "source")
	m.evaluationLatency = m.histogram("evaluation_latency_milliseconds",
		"Latency of a full catalog evaluation for one professional")
	m.metricsLatency = m.histogram("metrics_latency_milliseconds",
		"Latency of the metrics snapshot computation")
	m.unrecognizedRequirement = m.counterVec("unrecognized_requirements_total",
		"Requirement identifiers without a registered predicate", "requirement")

	m.cacheHits = m.counter("cache_hits_total", "Evaluation cache hits")
	m.cacheMisses = m.counter("cache_misses_total", "Evaluation cache misses")
	m.cacheEntries = m.gauge("cache_entries", "Entries currently held by the in-memory evaluation cache")
	m.cacheErrors = m.counterVec("cache_errors_total", "Evaluation cache backend errors", "operation")

	m.awards = m.counterVec("awards_total",
		"Award attempts by outcome (awarded, duplicate) and actor kind", "outcome", "actor")
	m.revocations = m.counterVec("revocations_total",
		"Revocation attempts by outcome and reason", "outcome", "reason")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds",
		"Ledger and metrics source query latency", "operation")
	m.repositoryErrors = m.counterVec("repository_errors_total",
		"Ledger and metrics source failures", "operation")

	m.queueSize = m.gauge("job_queue_size", "Jobs waiting in the award writer queues")
	m.queueCapacity = m.gauge("job_queue_capacity", "Total capacity of the award writer queues")
	m.queueRejected = m.counter("job_queue_rejected_total", "Jobs rejected because a queue was full or closed")
	m.jobsProcessed = m.counterVec("jobs_processed_total", "Background jobs processed by kind and result", "kind", "result")
	m.jobLatency = m.histogramVec("job_latency_milliseconds", "Background job processing latency", "kind")
	m.workerCount = m.gauge("worker_count", "Award writer workers running")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status code", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")
}

// RecordEvaluation counts an evaluation batch served from "cache" or "computed".
func RecordEvaluation(source string) {
	globalManager.evaluations.WithLabelValues(source).Inc()
}

// RecordEvaluationLatency records a full evaluation latency in milliseconds.
func RecordEvaluationLatency(latencyMs float64) {
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordMetricsLatency records the snapshot computation latency in milliseconds.
func RecordMetricsLatency(latencyMs float64) {
	globalManager.metricsLatency.Observe(latencyMs)
}

// RecordUnrecognizedRequirement counts a requirement id missing from the registry.
func RecordUnrecognizedRequirement(id string) {
	globalManager.unrecognizedRequirement.WithLabelValues(id).Inc()
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// UpdateCacheEntries sets the in-memory cache size.
func UpdateCacheEntries(n int) {
	globalManager.cacheEntries.Set(float64(n))
}

// RecordCacheError counts a cache backend failure for operation (get, set, invalidate).
func RecordCacheError(operation string) {
	globalManager.cacheErrors.WithLabelValues(operation).Inc()
}

// RecordAward counts an award attempt. outcome is "awarded" or "duplicate";
// actor is "system" or "admin".
func RecordAward(outcome, actor string) {
	globalManager.awards.WithLabelValues(outcome, actor).Inc()
}

// RecordRevocation counts a revocation attempt.
func RecordRevocation(outcome, reason string) {
	globalManager.revocations.WithLabelValues(outcome, reason).Inc()
}

// RecordRepositoryQueryLatency records a storage operation latency in milliseconds.
func RecordRepositoryQueryLatency(operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRepositoryError counts a failed storage operation.
func RecordRepositoryError(operation string) {
	globalManager.repositoryErrors.WithLabelValues(operation).Inc()
}

// UpdateQueueSize sets the number of queued jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the total queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a job that could not be enqueued.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// RecordJobProcessed counts a processed job; result is "ok" or "error".
func RecordJobProcessed(kind, result string) {
	globalManager.jobsProcessed.WithLabelValues(kind, result).Inc()
}

// RecordJobLatency records a job latency in milliseconds.
func RecordJobLatency(kind string, latencyMs float64) {
	globalManager.jobLatency.WithLabelValues(kind).Observe(latencyMs)
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the registry holding the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
