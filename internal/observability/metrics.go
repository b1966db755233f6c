// Package observability wires Prometheus metrics for the HTTP surface and
// the engine's irreversible operations.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registry and the collectors served on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	invoicesClosed prometheus.Counter
	billsPaid      prometheus.Counter
	periodsClosed  prometheus.Counter
	adjustments    prometheus.Counter
}

// NewMetrics builds a registry with the HTTP collectors and the engine's
// counters.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homeledger_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homeledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		invoicesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homeledger_invoices_closed_total",
			Help: "Card invoices closed.",
		}),
		billsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homeledger_bills_paid_total",
			Help: "Payable bills settled.",
		}),
		periodsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homeledger_periods_closed_total",
			Help: "Account periods locked.",
		}),
		adjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homeledger_reconcile_adjustments_total",
			Help: "Adjustment entries created during period close.",
		}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration,
		m.invoicesClosed, m.billsPaid, m.periodsClosed, m.adjustments)
	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Nil-safe counters so handlers work without a registry in tests.

func (m *Metrics) CountInvoiceClosed() {
	if m != nil {
		m.invoicesClosed.Inc()
	}
}

func (m *Metrics) CountBillPaid() {
	if m != nil {
		m.billsPaid.Inc()
	}
}

func (m *Metrics) CountPeriodClosed() {
	if m != nil {
		m.periodsClosed.Inc()
	}
}

func (m *Metrics) CountAdjustment() {
	if m != nil {
		m.adjustments.Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latencies using the chi route
// pattern so installment ids do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
