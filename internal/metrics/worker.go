package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks document processing on a private registry so multiple
// components (or tests) never fight over the global one. A nil *WorkerMetrics
// is valid and records nothing.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
}

func NewWorkerMetrics() *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docproc",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by dtype and outcome.",
		},
		[]string{"dtype", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docproc",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docproc",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of documents currently being processed.",
		},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	if m == nil {
		return
	}
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(dtype string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.processInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.processTotal.WithLabelValues(dtype, outcome).Inc()
	m.processDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
