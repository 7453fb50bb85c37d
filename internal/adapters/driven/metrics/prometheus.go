package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PipelineMetrics = (*Prometheus)(nil)

const namespace = "ochub"

// Prometheus records pipeline metrics on its own registry.
//
// Metrics:
//   - ochub_documents_ingested_total{status}
//   - ochub_stage_duration_seconds{stage}
//   - ochub_stage_failures_total{stage}
//   - ochub_databank_items_total{type}
//   - ochub_completion_tokens_total{model,kind}
//   - ochub_audit_integrity_score
type Prometheus struct {
	registry *prometheus.Registry

	documentsIngested *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	stageFailures     *prometheus.CounterVec
	databankItems     *prometheus.CounterVec
	completionTokens  *prometheus.CounterVec
	integrityScore    prometheus.Histogram
}

// NewPrometheus creates the collectors together with Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		documentsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Documents that finished the ingestion pipeline, by outcome",
			},
			[]string{"status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each ingestion stage in seconds",
				// Extraction and audit calls take tens of seconds
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Ingestion stage failures",
			},
			[]string{"stage"},
		),
		databankItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "databank_items_total",
				Help:      "Data bank items written, by type",
			},
			[]string{"type"},
		),
		completionTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_tokens_total",
				Help:      "LLM tokens consumed, by model and kind (prompt or completion)",
			},
			[]string{"model", "kind"},
		),
		integrityScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audit_integrity_score",
				Help:      "Integrity scores assigned by the extraction audit",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),
	}
}

func (p *Prometheus) ObserveStage(stage domain.Stage, d time.Duration, err error) {
	p.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	if err != nil {
		p.stageFailures.WithLabelValues(string(stage)).Inc()
	}
}

func (p *Prometheus) DocumentIngested(status domain.IngestStatus) {
	p.documentsIngested.WithLabelValues(string(status)).Inc()
}

func (p *Prometheus) DataBankItemWritten(itemType domain.DataBankItemType) {
	p.databankItems.WithLabelValues(string(itemType)).Inc()
}

func (p *Prometheus) CompletionUsage(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		p.completionTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		p.completionTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

func (p *Prometheus) AuditScored(report *domain.AuditReport) {
	if report == nil {
		return
	}
	p.integrityScore.Observe(float64(report.IntegrityScore))
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry for additional collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
