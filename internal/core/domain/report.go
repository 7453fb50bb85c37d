package domain

import "time"

// ReportStatus tracks a persisted report's processing state.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// Report is one ingested document with its flattened extraction.
type Report struct {
	ID          string `json:"id"`
	IdentityKey string `json:"identity_key"`
	Title       string `json:"title"`

	Organization string `json:"organization"`
	Year         *int   `json:"year,omitempty"`
	Category     string `json:"category"`
	PageCount    int    `json:"page_count"`
	SourcePath   string `json:"source_path,omitempty"`

	// Extracted sections.
	ExecutiveSummary string             `json:"executive_summary"`
	BriefingHook     string             `json:"briefing_hook,omitempty"`
	KeyFindings      []KeyFinding       `json:"key_findings"`
	Statistics       []Statistic        `json:"statistics"`
	Quotes           []Quote            `json:"quotes"`
	AhaMoments       []AhaMoment        `json:"aha_moments"`
	Recommendations  []Recommendation   `json:"recommendations"`
	Methodology      Methodology        `json:"methodology"`
	Limitations      Limitations        `json:"limitations"`
	Connections      Connections        `json:"connections"`
	ExtractionMeta   ExtractionMetadata `json:"extraction_metadata"`

	// KnowledgeBaseDocID is nil when the upload failed or was skipped.
	KnowledgeBaseDocID *string `json:"kb_document_id,omitempty"`

	// Audit summary, set only when an audit pass ran.
	AuditStatus    AuditStatus `json:"audit_status,omitempty"`
	IntegrityScore *int        `json:"integrity_score,omitempty"`

	Status    ReportStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ApplyExtraction replaces every extracted section with the ones from r.
// Nothing from the previous extraction survives.
func (rep *Report) ApplyExtraction(r *ExtractionResult) {
	if r == nil {
		r = EmptyExtraction()
	}
	r.EnsureLists()
	rep.ExecutiveSummary = r.ExecutiveSummary
	rep.BriefingHook = r.BriefingHook
	rep.KeyFindings = r.KeyFindings
	rep.Statistics = r.Statistics
	rep.Quotes = r.Quotes
	rep.AhaMoments = r.AhaMoments
	rep.Recommendations = r.Recommendations
	rep.Methodology = r.Methodology
	rep.Limitations = r.Limitations
	rep.Connections = r.Connections
	rep.ExtractionMeta = r.Metadata
}

// ApplyAudit records the audit summary, clearing it when a is nil.
func (rep *Report) ApplyAudit(a *AuditReport) {
	if a == nil {
		rep.AuditStatus = ""
		rep.IntegrityScore = nil
		return
	}
	score := a.IntegrityScore
	rep.AuditStatus = a.Status
	rep.IntegrityScore = &score
}

// IngestStatus is the outcome reported for one ingestion call.
type IngestStatus string

const (
	IngestStatusAlreadyExists IngestStatus = "already_exists"
	IngestStatusProcessed     IngestStatus = "processed"
	IngestStatusReprocessed   IngestStatus = "reprocessed"
)

// IngestResult is returned by a successful ingestion.
type IngestResult struct {
	ID     string       `json:"id"`
	Status IngestStatus `json:"status"`
	Title  string       `json:"title"`

	// Audit is set when an audit pass ran.
	Audit *AuditReport `json:"audit,omitempty"`

	// DataBankItems is the number of items fanned out.
	DataBankItems int `json:"databank_items"`
}

// IngestOptions controls one ingestion.
type IngestOptions struct {
	ForceReprocess bool
	Audit          bool
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	Organization string
	Category     string
	Year         *int
	Status       ReportStatus
	Query        string
	Limit        int
	Offset       int
}

// DefaultReportListLimit is applied when ReportFilter.Limit is unset.
const DefaultReportListLimit = 50
