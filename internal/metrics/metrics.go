// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	n8nRequests     *prometheus.CounterVec
	n8nDuration     *prometheus.HistogramVec
	authFailures    *prometheus.CounterVec
	workflowSync    *prometheus.CounterVec
	reconcileOrphan prometheus.Counter
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		n8nRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workflowai_n8n_requests_total",
			Help: "Requests sent to the n8n REST API by method and response code.",
		}, []string{"method", "code"}),
		n8nDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflowai_n8n_request_duration_seconds",
			Help:    "Latency of n8n REST API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		authFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workflowai_auth_failures_total",
			Help: "Rejected authentication attempts by reason.",
		}, []string{"reason"}),
		workflowSync: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workflowai_workflow_sync_total",
			Help: "Workflow synchronisation operations by outcome.",
		}, []string{"op", "outcome"}),
		reconcileOrphan: f.NewCounter(prometheus.CounterOpts{
			Name: "workflowai_reconcile_orphans_deleted_total",
			Help: "Local workflows removed because n8n no longer has them.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// The methods below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveN8N(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.n8nRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.n8nDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Sync(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.workflowSync.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) OrphanDeleted() {
	if m == nil {
		return
	}
	m.reconcileOrphan.Inc()
}
