package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mealcal"

// Metrics owns a private registry so tests can build as many as they like.
// All Observe methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	recordTotal    *prometheus.CounterVec
	recomputeTotal *prometheus.CounterVec
	plannerOps     *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		recordTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "last_eaten_record_total",
			Help:      "recordOccurrence calls by result (applied, skipped, cleared, not_found, error).",
		}, []string{"result"}),
		recomputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "last_eaten_recompute_total",
			Help:      "Last-eaten recomputations by outcome.",
		}, []string{"outcome"}),
		plannerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_operations_total",
			Help:      "Slot mutations by operation and status.",
		}, []string{"op", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recordTotal,
		m.recomputeTotal,
		m.plannerOps,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRecord(result string) {
	if m == nil {
		return
	}
	m.recordTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRecompute(outcome string) {
	if m == nil {
		return
	}
	m.recomputeTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePlannerOp(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.plannerOps.WithLabelValues(op, status).Inc()
}

// Middleware counts every request by method and final status code.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
