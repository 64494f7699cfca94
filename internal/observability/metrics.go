package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and batch runs.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	jobsStartedTotal      prometheus.Counter
	jobsFinishedTotal     *prometheus.CounterVec
	jobsRunning           prometheus.Gauge
	outcomesTotal         *prometheus.CounterVec
	transactionDuration   *prometheus.HistogramVec
	rateLimitWaitsTotal   prometheus.Counter
	recorderFailuresTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nikverify",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nikverify",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		jobsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nikverify",
				Name:      "jobs_started_total",
				Help:      "Total number of batch jobs submitted.",
			},
		),
		jobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nikverify",
				Name:      "jobs_finished_total",
				Help:      "Total number of batch jobs finished by terminal status.",
			},
			[]string{"status"},
		),
		jobsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nikverify",
				Name:      "jobs_running",
				Help:      "Current number of batch jobs driving a browser session.",
			},
		),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nikverify",
				Name:      "outcomes_total",
				Help:      "Total number of verification outcomes by result and failure reason.",
			},
			[]string{"result", "reason"},
		),
		transactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nikverify",
				Name:      "transaction_duration_seconds",
				Help:      "Duration of one verification transaction in seconds, including rate-limit waits.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"result"},
		),
		rateLimitWaitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nikverify",
				Name:      "rate_limit_waits_total",
				Help:      "Total number of portal rate-limit backoffs.",
			},
		),
		recorderFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nikverify",
				Name:      "recorder_failures_total",
				Help:      "Total number of failed job completion deliveries by recorder.",
			},
			[]string{"recorder"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.jobsStartedTotal,
		m.jobsFinishedTotal,
		m.jobsRunning,
		m.outcomesTotal,
		m.transactionDuration,
		m.rateLimitWaitsTotal,
		m.recorderFailuresTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncJobStarted() {
	if m == nil {
		return
	}
	m.jobsStartedTotal.Inc()
}

func (m *Metrics) IncJobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinishedTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncJobsRunning() {
	if m == nil {
		return
	}
	m.jobsRunning.Inc()
}

func (m *Metrics) DecJobsRunning() {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
}

func (m *Metrics) IncOutcome(result string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "none"
	}
	m.outcomesTotal.WithLabelValues(normalizeLabel(result), reasonLabel).Inc()
}

func (m *Metrics) ObserveTransactionDuration(result string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.transactionDuration.WithLabelValues(normalizeLabel(result)).Observe(seconds)
}

func (m *Metrics) IncRateLimitWait() {
	if m == nil {
		return
	}
	m.rateLimitWaitsTotal.Inc()
}

func (m *Metrics) IncRecorderFailure(recorder string) {
	if m == nil {
		return
	}
	m.recorderFailuresTotal.WithLabelValues(normalizeLabel(recorder)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
