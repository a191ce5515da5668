package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Recording methods are safe on a nil
// receiver so components can run without instrumentation in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	InvoicesCreatedTotal   prometheus.Counter
	StatusTransitionsTotal *prometheus.CounterVec
	BudgetRejectionsTotal  prometheus.Counter
	VersionConflictsTotal  *prometheus.CounterVec

	// Sequence metrics
	SequenceIssuedTotal   prometheus.Counter
	SequenceFailuresTotal prometheus.Counter

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Document metrics
	RenderDuration      *prometheus.HistogramVec
	RenderFailuresTotal prometheus.Counter
	DocumentCacheTotal  *prometheus.CounterVec

	// Sweep metrics
	OverdueMarkedTotal prometheus.Counter
	SweepRunsTotal     *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		InvoicesCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_invoices_created_total",
			Help: "Total number of invoices issued, including duplicates",
		}),
		StatusTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_status_transitions_total",
				Help: "Total number of invoice status transitions",
			},
			[]string{"from", "to"},
		),
		BudgetRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_budget_rejections_total",
			Help: "Total number of invoices rejected for exceeding the project budget",
		}),
		VersionConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_version_conflicts_total",
				Help: "Total number of optimistic write conflicts",
			},
			[]string{"operation"},
		),

		SequenceIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_sequence_issued_total",
			Help: "Total number of invoice numbers issued",
		}),
		SequenceFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_sequence_failures_total",
			Help: "Total number of failed invoice number allocations",
		}),

		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_notifications_total",
				Help: "Total number of status notifications by channel and outcome",
			},
			[]string{"channel", "status"},
		),

		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_render_duration_seconds",
				Help:    "Invoice document render duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"layout"},
		),
		RenderFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_render_failures_total",
			Help: "Total number of failed document renders",
		}),
		DocumentCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_document_cache_total",
				Help: "Document lookups by cache tier and result",
			},
			[]string{"tier", "result"},
		),

		OverdueMarkedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_overdue_marked_total",
			Help: "Total number of invoices moved to overdue by the sweep",
		}),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_sweep_runs_total",
				Help: "Total number of overdue sweep runs",
			},
			[]string{"status"},
		),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billing_db_connections_active",
			Help: "Number of active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billing_db_connections_idle",
			Help: "Number of idle database connections",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InvoicesCreatedTotal,
		m.StatusTransitionsTotal,
		m.BudgetRejectionsTotal,
		m.VersionConflictsTotal,
		m.SequenceIssuedTotal,
		m.SequenceFailuresTotal,
		m.NotificationsTotal,
		m.RenderDuration,
		m.RenderFailuresTotal,
		m.DocumentCacheTotal,
		m.OverdueMarkedTotal,
		m.SweepRunsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// InvoiceCreated counts an issued invoice
func (m *Metrics) InvoiceCreated() {
	if m == nil {
		return
	}
	m.InvoicesCreatedTotal.Inc()
}

// StatusTransition counts a committed status change
func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

// BudgetRejected counts a BudgetExceeded rejection
func (m *Metrics) BudgetRejected() {
	if m == nil {
		return
	}
	m.BudgetRejectionsTotal.Inc()
}

// VersionConflict counts an optimistic write that lost a race
func (m *Metrics) VersionConflict(operation string) {
	if m == nil {
		return
	}
	m.VersionConflictsTotal.WithLabelValues(operation).Inc()
}

// SequenceResult counts an invoice number allocation
func (m *Metrics) SequenceResult(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SequenceFailuresTotal.Inc()
		return
	}
	m.SequenceIssuedTotal.Inc()
}

// Notification counts a delivery attempt on one channel
func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// Render records a document render
func (m *Metrics) Render(layout string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RenderFailuresTotal.Inc()
		return
	}
	m.RenderDuration.WithLabelValues(layout).Observe(d.Seconds())
}

// DocumentCache records a lookup in the memory or archive tier
func (m *Metrics) DocumentCache(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DocumentCacheTotal.WithLabelValues(tier, result).Inc()
}

// SweepRun records a completed overdue sweep
func (m *Metrics) SweepRun(marked int, err error) {
	if m == nil {
		return
	}
	m.OverdueMarkedTotal.Add(float64(marked))
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.SweepRunsTotal.WithLabelValues(status).Inc()
}

// UpdateDBStats copies connection pool statistics into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template so ids do not explode
// label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
