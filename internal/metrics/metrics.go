package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	pipeline    *PipelineMetrics
)

// PipelineMetrics holds Prometheus metrics for ingestion and question answering.
type PipelineMetrics struct {
	DocumentsProcessed *prometheus.CounterVec
	ChunksIndexed      prometheus.Counter
	Questions          *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
}

// Init registers the metrics with the default registry exactly once.
func Init() *PipelineMetrics {
	metricsOnce.Do(func() {
		pipeline = &PipelineMetrics{
			DocumentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "docqa",
				Subsystem: "ingest",
				Name:      "documents_total",
				Help:      "Uploaded files by final outcome (indexed, failed, rejected).",
			}, []string{"outcome"}),
			ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "docqa",
				Subsystem: "ingest",
				Name:      "chunks_indexed_total",
				Help:      "Chunks embedded and written to the vector store.",
			}),
			Questions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "docqa",
				Subsystem: "qa",
				Name:      "questions_total",
				Help:      "Questions by outcome (answered, no_evidence, error).",
			}, []string{"outcome"}),
			ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "docqa",
				Subsystem: "provider",
				Name:      "request_seconds",
				Help:      "Latency of AI provider calls by operation.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			pipeline.DocumentsProcessed,
			pipeline.ChunksIndexed,
			pipeline.Questions,
			pipeline.ProviderLatency,
		)
	})
	return pipeline
}

func Metrics() *PipelineMetrics { return Init() }

func (m *PipelineMetrics) RecordDocument(outcome string) {
	if m == nil {
		return
	}
	m.DocumentsProcessed.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) RecordChunks(n int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.Add(float64(n))
}

func (m *PipelineMetrics) RecordQuestion(outcome string) {
	if m == nil {
		return
	}
	m.Questions.WithLabelValues(outcome).Inc()
}

// ObserveProvider records time elapsed since start.
func (m *PipelineMetrics) ObserveProvider(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
