// Package metrics exposes Prometheus collectors for HTTP, dose and ingestion activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medmon"

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	doseTransits  *prometheus.CounterVec
	ingestRecv    *prometheus.CounterVec
	ingestFailed  *prometheus.CounterVec
	reconcileTime prometheus.Histogram
	notifySent    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		doseTransits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dose_transitions_total",
			Help:      "Dose status transitions by source and target status.",
		}, []string{"source", "status"}),
		ingestRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "Device messages received by kind.",
		}, []string{"kind"}),
		ingestFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Device messages that could not be applied, by kind.",
		}, []string{"kind"}),
		reconcileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling a device's upcoming doses.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		notifySent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Caretaker notifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.doseTransits,
		m.ingestRecv,
		m.ingestFailed,
		m.reconcileTime,
		m.notifySent,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// DoseTransition counts a status change; source is "dashboard", "hardware", "mqtt" or "reconciler".
func (m *Metrics) DoseTransition(source, status string) {
	if m == nil {
		return
	}
	m.doseTransits.WithLabelValues(source, status).Inc()
}

func (m *Metrics) DoseTransitions(source, status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.doseTransits.WithLabelValues(source, status).Add(float64(n))
}

func (m *Metrics) IngestReceived(kind string) {
	if m == nil {
		return
	}
	m.ingestRecv.WithLabelValues(kind).Inc()
}

func (m *Metrics) IngestFailed(kind string) {
	if m == nil {
		return
	}
	m.ingestFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveReconcile(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconcileTime.Observe(elapsed.Seconds())
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifySent.WithLabelValues(outcome).Inc()
}
