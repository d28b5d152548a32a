package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics tracks the API surface and the chat pipeline.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatRequestsTotal  *prometheus.CounterVec
	chatDuration       *prometheus.HistogramVec
	chatCitations      *prometheus.HistogramVec
	clarificationTotal *prometheus.CounterVec
	noEvidenceTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	m := &HTTPServerMetrics{
		registry: registry,
		service:  service,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "advisor",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "advisor",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "advisor",
				Subsystem:   "http",
				Name:        "in_flight_requests",
				Help:        "Number of in-flight HTTP requests.",
				ConstLabels: prometheus.Labels{"service": service},
			},
		),
		chatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "advisor",
				Subsystem: "chat",
				Name:      "requests_total",
				Help:      "Total completed chat requests by intent.",
			},
			[]string{"service", "intent"},
		),
		chatDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "advisor",
				Subsystem: "chat",
				Name:      "pipeline_duration_seconds",
				Help:      "Chat pipeline duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		chatCitations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "advisor",
				Subsystem: "chat",
				Name:      "citations_per_answer",
				Help:      "Distribution of citations per grounded answer.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8},
			},
			[]string{"service"},
		),
		clarificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "advisor",
				Subsystem: "chat",
				Name:      "clarifications_total",
				Help:      "Total chat requests answered with a clarifying question.",
			},
			[]string{"service"},
		),
		noEvidenceTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "advisor",
				Subsystem: "chat",
				Name:      "no_evidence_total",
				Help:      "Total chat requests answered without retrieved evidence.",
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.chatRequestsTotal,
		m.chatDuration,
		m.chatCitations,
		m.clarificationTotal,
		m.noEvidenceTotal,
	)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.requestTotal.WithLabelValues(m.service, method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(m.service, method, path).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) IncInFlight() func() {
	m.requestInFlight.Inc()
	return m.requestInFlight.Dec
}

func (m *HTTPServerMetrics) ObserveChat(intent string, citations int, clarification bool, duration float64) {
	m.chatRequestsTotal.WithLabelValues(m.service, intent).Inc()
	m.chatDuration.WithLabelValues(m.service).Observe(duration)
	if clarification {
		m.clarificationTotal.WithLabelValues(m.service).Inc()
		return
	}
	m.chatCitations.WithLabelValues(m.service).Observe(float64(citations))
	if citations == 0 {
		m.noEvidenceTotal.WithLabelValues(m.service).Inc()
	}
}
