package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	documentLoads       *prometheus.CounterVec
	documentSaves       *prometheus.CounterVec
	saveDuration        prometheus.Histogram
	handlerFaults       *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
}

// New creates a fresh Metrics registry with HTTP, document and session metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetsketch",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by streetsketch",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streetsketch",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by streetsketch",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	documentLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetsketch",
		Name:      "document_loads_total",
		Help:      "Documents applied to sessions, by source and outcome",
	}, []string{"source", "outcome"})

	documentSaves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetsketch",
		Name:      "document_saves_total",
		Help:      "Session saves to the map library, by outcome",
	}, []string{"outcome"})

	saveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streetsketch",
		Name:      "document_save_duration_seconds",
		Help:      "Duration of map library saves",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	handlerFaults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetsketch",
		Name:      "event_handler_faults_total",
		Help:      "Event handler errors and recovered panics, by topic",
	}, []string{"topic"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streetsketch",
		Name:      "sessions_active",
		Help:      "Number of open editing sessions",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		documentLoads,
		documentSaves,
		saveDuration,
		handlerFaults,
		sessionsActive,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		documentLoads:       documentLoads,
		documentSaves:       documentSaves,
		saveDuration:        saveDuration,
		handlerFaults:       handlerFaults,
		sessionsActive:      sessionsActive,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveDocumentLoad counts one load attempt. outcome is "ok" or an error kind.
func (m *Metrics) ObserveDocumentLoad(source, outcome string) {
	if m == nil {
		return
	}
	m.documentLoads.With(prometheus.Labels{"source": source, "outcome": outcome}).Inc()
}

// ObserveDocumentSave counts one save and its duration.
func (m *Metrics) ObserveDocumentSave(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.documentSaves.With(prometheus.Labels{"outcome": outcome}).Inc()
	m.saveDuration.Observe(duration.Seconds())
}

// IncHandlerFault counts a failed event handler.
func (m *Metrics) IncHandlerFault(topic string) {
	if m == nil {
		return
	}
	m.handlerFaults.With(prometheus.Labels{"topic": topic}).Inc()
}

// SessionOpened and SessionClosed track the open session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
