package driven

import (
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// PipelineMetrics records ingestion pipeline measurements.
type PipelineMetrics interface {
	ObserveStage(stage domain.Stage, d time.Duration, err error)
	DocumentIngested(status domain.IngestStatus)
	DataBankItemWritten(itemType domain.DataBankItemType)
	CompletionUsage(model string, promptTokens, completionTokens int)
	AuditScored(report *domain.AuditReport)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) ObserveStage(domain.Stage, time.Duration, error) {}
func (NopMetrics) DocumentIngested(domain.IngestStatus)            {}
func (NopMetrics) DataBankItemWritten(domain.DataBankItemType)     {}
func (NopMetrics) CompletionUsage(string, int, int)                {}
func (NopMetrics) AuditScored(*domain.AuditReport)                 {}

var _ PipelineMetrics = NopMetrics{}
