package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type TranslatorMetrics struct {
	registry *prometheus.Registry

	jobTotal    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobInFlight prometheus.Gauge
	itemsTotal  *prometheus.CounterVec
}

func NewTranslatorMetrics(service string) *TranslatorMetrics {
	registry := prometheus.NewRegistry()

	jobTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "translator",
			Name:      "jobs_total",
			Help:      "Total processed translation jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "planrag",
			Subsystem: "translator",
			Name:      "job_duration_seconds",
			Help:      "Translation job duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	jobInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "planrag",
			Subsystem: "translator",
			Name:      "jobs_in_flight",
			Help:      "Number of translation jobs currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planrag",
			Subsystem: "translator",
			Name:      "items_total",
			Help:      "Total translated questions by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(jobTotal, jobDuration, jobInFlight, itemsTotal)

	return &TranslatorMetrics{
		registry:    registry,
		jobTotal:    jobTotal,
		jobDuration: jobDuration,
		jobInFlight: jobInFlight,
		itemsTotal:  itemsTotal,
	}
}

func (m *TranslatorMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *TranslatorMetrics) StartJob() {
	m.jobInFlight.Inc()
}

func (m *TranslatorMetrics) FinishJob(service string, duration time.Duration, err error) {
	m.jobInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobTotal.WithLabelValues(service, status).Inc()
	m.jobDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// RecordItems result is "translated" or "kept_original".
func (m *TranslatorMetrics) RecordItems(service, result string, count int) {
	if count <= 0 {
		return
	}
	m.itemsTotal.WithLabelValues(service, result).Add(float64(count))
}
