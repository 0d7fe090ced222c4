package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	askTotal          *prometheus.CounterVec
	askDuration       *prometheus.HistogramVec
	askSources        *prometheus.HistogramVec
	searchMethodTotal *prometheus.CounterVec
	agentIterations   *prometheus.HistogramVec
	queryRewrites     *prometheus.CounterVec
	translationsTotal *prometheus.CounterVec
	llmTokensTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "planrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "planrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	askTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "rag",
			Name:      "ask_total",
			Help:      "Total completed ask requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "planrag",
			Subsystem: "rag",
			Name:      "ask_duration_seconds",
			Help:      "End-to-end ask pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	askSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "planrag",
			Subsystem: "rag",
			Name:      "ask_sources",
			Help:      "Distribution of cited sources per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 7, 10, 15},
		},
		[]string{"service"},
	)
	searchMethodTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "rag",
			Name:      "search_method_total",
			Help:      "Total retrievals by effective search method.",
		},
		[]string{"service", "method"},
	)
	agentIterations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "planrag",
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Distribution of retrieval loop iterations per question.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	queryRewrites := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "agent",
			Name:      "query_rewrites_total",
			Help:      "Total rewritten retrieval queries.",
		},
		[]string{"service"},
	)
	translationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "translation",
			Name:      "requests_total",
			Help:      "Total query translations by result.",
		},
		[]string{"service", "result"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Approximate token usage by operation and model.",
		},
		[]string{"service", "operation", "model"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		askTotal,
		askDuration,
		askSources,
		searchMethodTotal,
		agentIterations,
		queryRewrites,
		translationsTotal,
		llmTokensTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		askTotal:          askTotal,
		askDuration:       askDuration,
		askSources:        askSources,
		searchMethodTotal: searchMethodTotal,
		agentIterations:   agentIterations,
		queryRewrites:     queryRewrites,
		translationsTotal: translationsTotal,
		llmTokensTotal:    llmTokensTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordAsk captures one completed pipeline run. Outcome is "answered",
// "no_context" or "error".
func (m *HTTPServerMetrics) RecordAsk(service, outcome, searchMethod string, sourceCount, iterations, rewrites int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.askTotal.WithLabelValues(service, outcome).Inc()
	m.askDuration.WithLabelValues(service).Observe(duration.Seconds())

	if outcome == "error" {
		return
	}
	m.askSources.WithLabelValues(service).Observe(float64(sourceCount))
	if searchMethod != "" {
		m.searchMethodTotal.WithLabelValues(service, searchMethod).Inc()
	}
	if iterations > 0 {
		m.agentIterations.WithLabelValues(service).Observe(float64(iterations))
	}
	if rewrites > 0 {
		m.queryRewrites.WithLabelValues(service).Add(float64(rewrites))
	}
}

// RecordTranslation result is "translated" or "skipped".
func (m *HTTPServerMetrics) RecordTranslation(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.translationsTotal.WithLabelValues(service, result).Inc()
}

func (m *HTTPServerMetrics) RecordTokenUsage(service, operation, model string, tokens int) {
	if tokens <= 0 {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.llmTokensTotal.WithLabelValues(service, operation, model).Add(float64(tokens))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
