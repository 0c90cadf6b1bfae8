package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes HTTP and SLA engine counters. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	requests      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	breaches      *prometheus.CounterVec
	nearBreaches  *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobFailures   *prometheus.CounterVec
	scanLockSkips *prometheus.CounterVec
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		breaches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_breaches_total",
			Help: "SLA milestones flagged as breached.",
		}, []string{"kind"}),
		nearBreaches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_near_breaches_total",
			Help: "Near-breach signals emitted.",
		}, []string{"kind"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_escalations_total",
			Help: "Escalation rules triggered by action.",
		}, []string{"action"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sla_job_duration_seconds",
			Help:    "Duration of SLA scan jobs.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		jobFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_job_failures_total",
			Help: "Candidates that failed during SLA scan jobs.",
		}, []string{"job"}),
		scanLockSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_job_lock_skips_total",
			Help: "Scan invocations skipped because another run held the lock.",
		}, []string{"job"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordBreach counts a flipped breach flag.
func (m *Metrics) RecordBreach(kind string) {
	if m == nil {
		return
	}
	m.breaches.WithLabelValues(kind).Inc()
}

// RecordNearBreach counts an emitted near-breach signal.
func (m *Metrics) RecordNearBreach(kind string) {
	if m == nil {
		return
	}
	m.nearBreaches.WithLabelValues(kind).Inc()
}

// RecordEscalation counts a triggered rule.
func (m *Metrics) RecordEscalation(action string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(action).Inc()
}

// RecordJob observes a finished job run and its failed candidates.
func (m *Metrics) RecordJob(job string, duration time.Duration, failed int) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if failed > 0 {
		m.jobFailures.WithLabelValues(job).Add(float64(failed))
	}
}

// RecordLockSkip counts a job run skipped on lock contention.
func (m *Metrics) RecordLockSkip(job string) {
	if m == nil {
		return
	}
	m.scanLockSkips.WithLabelValues(job).Inc()
}
