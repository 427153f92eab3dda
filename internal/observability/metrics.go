package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	postingDuration *prometheus.HistogramVec
	fanoutTargets   *prometheus.CounterVec
	approvals       *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik GL.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_gl_postings_total",
		Help: "Jumlah posting dokumen per ledger dan hasil.",
	}, []string{"ledger", "result"})
	postingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_gl_posting_duration_seconds",
		Help:    "Durasi transaksi posting per ledger.",
		Buckets: prometheus.DefBuckets,
	}, []string{"ledger"})
	fanout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_gl_fanout_targets_total",
		Help: "Hasil distribusi ke ledger paralel per ledger target.",
	}, []string{"ledger", "result"})
	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_gl_approval_actions_total",
		Help: "Aksi workflow approval berdasarkan hasil.",
	}, []string{"action", "result"})
	registry.MustRegister(requests, duration, postings, postingDuration, fanout, approvals)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postings:        postings,
		postingDuration: postingDuration,
		fanoutTargets:   fanout,
		approvals:       approvals,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePosting mencatat satu percobaan posting.
func (m *Metrics) ObservePosting(ledgerID, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(ledgerID, result).Inc()
	m.postingDuration.WithLabelValues(ledgerID).Observe(elapsed.Seconds())
}

// ObserveFanoutTarget mencatat hasil satu ledger target.
func (m *Metrics) ObserveFanoutTarget(ledgerID, result string) {
	if m == nil {
		return
	}
	m.fanoutTargets.WithLabelValues(ledgerID, result).Inc()
}

// ObserveApproval mencatat satu aksi approval.
func (m *Metrics) ObserveApproval(action, result string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(action, result).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
