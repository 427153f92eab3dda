package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	anomalies *prometheus.CounterVec
	notices   *prometheus.CounterVec
	overdue   prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddAnomalies increments the anomaly counter for the supplied check kind
// and ledger scope.
func (m *Metrics) AddAnomalies(kind, companyCode, ledgerID string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if companyCode == "" {
		companyCode = "*"
	}
	if ledgerID == "" {
		ledgerID = "*"
	}
	m.anomalies.WithLabelValues(kind, companyCode, ledgerID).Add(float64(count))
}

// ObserveNotice counts an approver notice delivery attempt.
func (m *Metrics) ObserveNotice(reminder bool, err error) {
	if m == nil {
		return
	}
	kind := "initial"
	if reminder {
		kind = "reminder"
	}
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	m.notices.WithLabelValues(kind, result).Inc()
}

// SetOverdue records how many approval steps were past their time limit at the last sweep.
func (m *Metrics) SetOverdue(count int) {
	if m == nil {
		return
	}
	m.overdue.Set(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_anomalies_total",
		Help: "GL integrity anomalies grouped by check kind and ledger scope.",
	}, []string{"kind", "company", "ledger"})
	notices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_approval_notices_total",
		Help: "Approver notices processed by kind and delivery result.",
	}, []string{"kind", "result"})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_jobs_approvals_overdue",
		Help: "Pending approval steps past their time limit at the last sweep.",
	})
	registerer.MustRegister(runs, failures, duration, anomalies, notices, overdue)
	return &Metrics{
		runs:      runs,
		failures:  failures,
		duration:  duration,
		anomalies: anomalies,
		notices:   notices,
		overdue:   overdue,
	}
}
