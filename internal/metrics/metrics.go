package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Writes    *prometheus.CounterVec
	Fanout    *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wholesale",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wholesale",
			Subsystem: "api",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wholesale",
			Subsystem: "orders",
			Name:      "writes_total",
			Help:      "Order store writes by operation and result.",
		}, []string{"op", "result"}),
		Fanout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wholesale",
			Subsystem: "orders",
			Name:      "fanout_items_total",
			Help:      "Per-order outcomes of batch and import fan-outs.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Writes, m.Fanout)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Write counts one store write. Safe on a nil *Metrics.
func (m *Metrics) Write(op string, err error) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(op, result(err)).Inc()
}

// Item counts one fan-out outcome. Safe on a nil *Metrics.
func (m *Metrics) Item(kind string, err error) {
	if m == nil {
		return
	}
	m.Fanout.WithLabelValues(kind, result(err)).Inc()
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
