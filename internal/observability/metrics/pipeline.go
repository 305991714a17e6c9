package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

// PipelineMetrics implements ports.PipelineObserver. Pass an existing
// registry to share a /metrics endpoint with the HTTP collectors, or nil for
// a standalone one.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	documentsTotal    *prometheus.CounterVec
	documentDuration  *prometheus.HistogramVec
	documentsInFlight prometheus.Gauge
	stageTotal        *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	batchesTotal      *prometheus.CounterVec
	batchDocuments    *prometheus.HistogramVec
	batchSkipped      *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total processed documents by disposition.",
		},
		[]string{"service", "disposition"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Per-document pipeline duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "disposition"},
	)
	documentsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Number of documents currently in the pipeline.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Total stage attempts by stage, state and failure kind.",
		},
		[]string{"service", "stage", "state", "kind"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total batch runs by terminal status.",
		},
		[]string{"service", "status"},
	)
	batchDocuments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "batch",
			Name:      "documents",
			Help:      "Distribution of documents handed to the pipeline per batch.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service"},
	)
	batchSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "batch",
			Name:      "skipped_total",
			Help:      "Total documents skipped by the resumability filter.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		documentsTotal,
		documentDuration,
		documentsInFlight,
		stageTotal,
		stageDuration,
		batchesTotal,
		batchDocuments,
		batchSkipped,
	)

	return &PipelineMetrics{
		registry:          registry,
		service:           service,
		documentsTotal:    documentsTotal,
		documentDuration:  documentDuration,
		documentsInFlight: documentsInFlight,
		stageTotal:        stageTotal,
		stageDuration:     stageDuration,
		batchesTotal:      batchesTotal,
		batchDocuments:    batchDocuments,
		batchSkipped:      batchSkipped,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartDocument() {
	m.documentsInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(disposition domain.Disposition, duration time.Duration) {
	m.documentsInFlight.Dec()
	m.documentsTotal.WithLabelValues(m.service, string(disposition)).Inc()
	m.documentDuration.WithLabelValues(m.service, string(disposition)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveStage(stage domain.Stage, result domain.StageResult, duration time.Duration) {
	kind := string(result.Kind)
	if result.State != domain.StageFailed {
		kind = ""
	}
	m.stageTotal.WithLabelValues(m.service, string(stage), string(result.State), kind).Inc()
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveBatch(report *domain.BatchReport) {
	status := "completed"
	if report.Canceled {
		status = "canceled"
	}
	m.batchesTotal.WithLabelValues(m.service, status).Inc()
	m.batchDocuments.WithLabelValues(m.service).Observe(float64(report.Enumerated))
	if report.Skipped > 0 {
		m.batchSkipped.WithLabelValues(m.service).Add(float64(report.Skipped))
	}
}
