package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitepack"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pipeline metrics
	JobsTotal      *prometheus.CounterVec
	JobsInFlight   prometheus.Gauge
	StageDuration  *prometheus.HistogramVec
	LockWait       prometheus.Histogram
	ArchiveBytes   prometheus.Histogram
	ArchiveFiles   prometheus.Histogram
	PagesRewritten prometheus.Counter

	// Outbound fetch metrics
	FetchRequests      *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a collector backed by its own registry, so several
// servers can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 8, 9),
			},
			[]string{"method", "path"},
		),

		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Mirror jobs by final status",
			},
			[]string{"status"},
		),
		JobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_in_flight",
				Help:      "Mirror jobs currently holding a directory lock",
			},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage", "status"},
		),
		LockWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for the per-name directory lock",
				Buckets:   []float64{.001, .01, .1, 1, 5, 30, 120},
			},
		),
		ArchiveBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_bytes",
				Help:      "Compressed archive size in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		ArchiveFiles: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_files",
				Help:      "Number of entries per archive",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		PagesRewritten: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_rewritten_total",
				Help:      "HTML files modified by post-processing",
			},
		),

		FetchRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_requests_total",
				Help:      "Outbound fetches by policy and result",
			},
			[]string{"policy", "result"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state changes",
			},
			[]string{"to"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordJob records the final status of a mirror job
func (m *Metrics) RecordJob(status string) {
	m.JobsTotal.WithLabelValues(status).Inc()
}

// RecordArchive records the size of a finished archive
func (m *Metrics) RecordArchive(bytes int64, files int) {
	m.ArchiveBytes.Observe(float64(bytes))
	m.ArchiveFiles.Observe(float64(files))
}

// RecordFetch records one outbound fetch
func (m *Metrics) RecordFetch(policy, result string) {
	m.FetchRequests.WithLabelValues(policy, result).Inc()
}

// RecordBreakerTransition records a breaker moving to a new state
func (m *Metrics) RecordBreakerTransition(to string) {
	m.BreakerTransitions.WithLabelValues(to).Inc()
}

// Uptime reports how long the collector has existed
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
