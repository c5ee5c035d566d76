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

// Metrics stores Prometheus collectors used by the API and the batch pipeline.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	batchesStartedTotal      *prometheus.CounterVec
	candidatesProcessedTotal *prometheus.CounterVec
	enrichmentDuration       *prometheus.HistogramVec
	enrollmentDuration       *prometheus.HistogramVec
	breakerSkipsTotal        prometheus.Counter
	gateFailOpenTotal        *prometheus.CounterVec
	batchInFlight            prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assignment_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "assignment_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		batchesStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assignment_engine",
				Name:      "batches_started_total",
				Help:      "Total number of batch runs started, by mode (new or resumed).",
			},
			[]string{"mode"},
		),
		candidatesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assignment_engine",
				Name:      "candidates_processed_total",
				Help:      "Total number of candidates processed, by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		),
		enrichmentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "assignment_engine",
				Name:      "enrichment_duration_seconds",
				Help:      "Text-generation call duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"channel"},
		),
		enrollmentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "assignment_engine",
				Name:      "enrollment_duration_seconds",
				Help:      "Outreach enrollment call duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		breakerSkipsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "assignment_engine",
				Name:      "breaker_skips_total",
				Help:      "Total number of runs skipped by the lead-limit circuit breaker.",
			},
		),
		gateFailOpenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assignment_engine",
				Name:      "gate_fail_open_total",
				Help:      "Total number of gate checks that failed open, by check.",
			},
			[]string{"check"},
		),
		batchInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "assignment_engine",
				Name:      "batch_in_flight",
				Help:      "Whether a batch run is currently in flight.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.batchesStartedTotal,
		m.candidatesProcessedTotal,
		m.enrichmentDuration,
		m.enrollmentDuration,
		m.breakerSkipsTotal,
		m.gateFailOpenTotal,
		m.batchInFlight,
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

func (m *Metrics) IncBatchStarted(mode string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(mode))
	if label == "" {
		label = "new"
	}
	m.batchesStartedTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncCandidateProcessed(channel string, outcome string) {
	if m == nil {
		return
	}
	outcomeLabel := strings.TrimSpace(strings.ToLower(outcome))
	if outcomeLabel == "" {
		outcomeLabel = "unknown"
	}
	m.candidatesProcessedTotal.WithLabelValues(normalizeChannel(channel), outcomeLabel).Inc()
}

func (m *Metrics) ObserveEnrichmentDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.enrichmentDuration.WithLabelValues(normalizeChannel(channel)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveEnrollmentDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.enrollmentDuration.WithLabelValues(normalizeChannel(channel)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncBreakerSkip() {
	if m == nil {
		return
	}
	m.breakerSkipsTotal.Inc()
}

func (m *Metrics) IncGateFailOpen(check string) {
	if m == nil {
		return
	}
	checkLabel := strings.TrimSpace(strings.ToLower(check))
	if checkLabel == "" {
		checkLabel = "unknown"
	}
	m.gateFailOpenTotal.WithLabelValues(checkLabel).Inc()
}

func (m *Metrics) SetBatchInFlight(inFlight bool) {
	if m == nil {
		return
	}
	if inFlight {
		m.batchInFlight.Set(1)
		return
	}
	m.batchInFlight.Set(0)
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

func nonNegativeSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
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

func normalizeChannel(channel string) string {
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
