package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.IngestionService = (*IngestionOrchestrator)(nil)

// DefaultCollection is the knowledge-base collection reports are uploaded to.
const DefaultCollection = "reports"

// metadataSampleChars is how much text metadata inference sees.
const metadataSampleChars = 4000

const tracerName = "github.com/sfdxb7/oc-hub/internal/core/services"

// IngestionOrchestrator coordinates the per-document ingestion pipeline:
//  1. Read the source folder
//  2. Existence check (short-circuits unless forced)
//  3. Infer metadata and title
//  4. Upload to the knowledge base (best-effort)
//  5. Extract
//  6. Audit (optional, with one re-extraction on REJECT)
//  7. Persist the full report row
//  8. Fan out to the data bank (best-effort)
type IngestionOrchestrator struct {
	reader            driven.SourceReader
	reports           driven.ReportStore
	knowledgeBase     driven.KnowledgeBase
	collection        string
	extractor         *Extractor
	auditor           *Auditor
	fanOut            *FanOut
	metrics           driven.PipelineMetrics
	reextractOnReject bool
	tracer            trace.Tracer
	logger            *slog.Logger

	collectionMu sync.Mutex
	collectionID string
}

// IngestionOrchestratorConfig holds dependencies for IngestionOrchestrator.
type IngestionOrchestratorConfig struct {
	Reader            driven.SourceReader
	Reports           driven.ReportStore
	KnowledgeBase     driven.KnowledgeBase // Optional: upload is skipped when nil
	Collection        string               // Knowledge-base collection (default: "reports")
	Extractor         *Extractor
	Auditor           *Auditor // Optional: required for audited ingestion
	FanOut            *FanOut  // Optional: fan-out is skipped when nil
	Metrics           driven.PipelineMetrics
	ReextractOnReject bool
	Logger            *slog.Logger
}

// NewIngestionOrchestrator creates a new ingestion orchestrator.
func NewIngestionOrchestrator(cfg IngestionOrchestratorConfig) *IngestionOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	return &IngestionOrchestrator{
		reader:            cfg.Reader,
		reports:           cfg.Reports,
		knowledgeBase:     cfg.KnowledgeBase,
		collection:        collection,
		extractor:         cfg.Extractor,
		auditor:           cfg.Auditor,
		fanOut:            cfg.FanOut,
		metrics:           metrics,
		reextractOnReject: cfg.ReextractOnReject,
		tracer:            otel.Tracer(tracerName),
		logger:            logger,
	}
}

// Ingest runs the pipeline for one folder. Errors are *domain.StageError
// values naming the stage that failed.
func (o *IngestionOrchestrator) Ingest(ctx context.Context, folder string, opts domain.IngestOptions) (*domain.IngestResult, error) {
	ctx, span := o.tracer.Start(ctx, "ingest", trace.WithAttributes(attribute.String("folder", folder)))
	defer span.End()

	result, err := o.ingest(ctx, folder, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("ingestion failed", "folder", folder, "stage", domain.FailedStage(err), "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("status", string(result.Status)))
	o.metrics.DocumentIngested(result.Status)
	return result, nil
}

func (o *IngestionOrchestrator) ingest(ctx context.Context, folder string, opts domain.IngestOptions) (*domain.IngestResult, error) {
	// Step 1: Read the source
	var doc *domain.SourceDocument
	err := o.stage(ctx, domain.StageRead, folder, func(ctx context.Context) error {
		var err error
		doc, err = o.reader.Read(ctx, folder)
		if err == nil && doc.IsBlank() {
			err = fmt.Errorf("%s: %w", folder, domain.ErrEmptySource)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	key := doc.IdentityKey

	// Step 2: Existence check
	var existing *domain.Report
	err = o.stage(ctx, domain.StageExistsCheck, key, func(ctx context.Context) error {
		r, err := o.reports.FindByIdentityKey(ctx, key)
		switch {
		case err == nil:
			existing = r
			return nil
		case errors.Is(err, domain.ErrNotFound):
			return nil
		default:
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	})
	if err != nil {
		return nil, err
	}
	if existing != nil && !opts.ForceReprocess {
		o.logger.Info("report already exists, skipping", "identity_key", key, "report_id", existing.ID)
		return &domain.IngestResult{
			ID:     existing.ID,
			Status: domain.IngestStatusAlreadyExists,
			Title:  existing.Title,
		}, nil
	}

	// Step 3: Metadata and title
	meta := InferMetadata(key, doc.Sample(metadataSampleChars))
	title := ExtractTitle(doc.RawText, key)
	o.logger.Info("ingesting document",
		"identity_key", key,
		"title", title,
		"organization", meta.Organization,
		"chars", doc.CharCount(),
		"force", opts.ForceReprocess,
	)

	// Step 4: Knowledge-base upload
	var kbDocID *string
	_ = o.stage(ctx, domain.StageUpload, key, func(ctx context.Context) error {
		var err error
		kbDocID, err = o.upload(ctx, doc)
		if err != nil {
			o.logger.Warn("failed to upload to knowledge base, continuing without reference",
				"identity_key", key,
				"error", err,
			)
		}
		return err
	})

	// Steps 5-6: Extract, then audit when requested
	var (
		extraction *domain.ExtractionResult
		audit      *domain.AuditReport
	)
	_ = o.stage(ctx, domain.StageExtract, key, func(ctx context.Context) error {
		extraction = o.extractor.Extract(ctx, doc, title, meta.Organization, meta.Year)
		return nil
	})
	if opts.Audit && o.auditor != nil {
		_ = o.stage(ctx, domain.StageAudit, key, func(ctx context.Context) error {
			extraction, audit = o.auditAndRetry(ctx, doc, title, meta, extraction)
			return nil
		})
	}

	// Step 7: Persist
	report := o.buildReport(existing, doc, title, meta, kbDocID, extraction, audit)
	err = o.stage(ctx, domain.StagePersist, key, func(ctx context.Context) error {
		var err error
		if existing != nil {
			err = o.reports.Update(ctx, report)
		} else {
			err = o.reports.Create(ctx, report)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Step 8: Data-bank fan-out
	written := 0
	if o.fanOut != nil {
		_ = o.stage(ctx, domain.StageFanOut, key, func(ctx context.Context) error {
			if existing != nil {
				o.fanOut.Clear(ctx, report.ID)
			}
			written = o.fanOut.Run(ctx, report.ID, extraction).Written
			return nil
		})
	}

	status := domain.IngestStatusProcessed
	if existing != nil {
		status = domain.IngestStatusReprocessed
	}
	o.logger.Info("ingestion complete",
		"identity_key", key,
		"report_id", report.ID,
		"status", status,
		"databank_items", written,
	)

	return &domain.IngestResult{
		ID:            report.ID,
		Status:        status,
		Title:         title,
		Audit:         audit,
		DataBankItems: written,
	}, nil
}

// auditAndRetry audits the extraction and, when configured, re-extracts once
// on REJECT. The higher-scoring of the two extractions is returned.
func (o *IngestionOrchestrator) auditAndRetry(ctx context.Context, doc *domain.SourceDocument, title string, meta domain.ReportMetadata, extraction *domain.ExtractionResult) (*domain.ExtractionResult, *domain.AuditReport) {
	audit := o.auditor.Audit(ctx, doc, extraction)
	if audit.Accepted() || !o.reextractOnReject {
		return extraction, audit
	}

	o.logger.Warn("extraction rejected by audit, re-extracting",
		"identity_key", doc.IdentityKey,
		"integrity_score", audit.IntegrityScore,
	)
	retry := o.extractor.Extract(ctx, doc, title, meta.Organization, meta.Year)
	retryAudit := o.auditor.Audit(ctx, doc, retry)
	if retryAudit.IntegrityScore > audit.IntegrityScore {
		return retry, retryAudit
	}
	return extraction, audit
}

// upload sends the text to the knowledge base and triggers parsing. A nil
// reference with a nil error means no knowledge base is configured.
func (o *IngestionOrchestrator) upload(ctx context.Context, doc *domain.SourceDocument) (*string, error) {
	if o.knowledgeBase == nil {
		return nil, nil
	}

	collectionID, err := o.ensureCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}

	kbDoc, err := o.knowledgeBase.UploadText(ctx, collectionID, doc.IdentityKey+".md", doc.RawText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpload, err)
	}

	// Many backends parse on upload; a failed trigger is not an upload failure
	if err := o.knowledgeBase.TriggerParse(ctx, collectionID, []string{kbDoc.ID}); err != nil {
		o.logger.Warn("failed to trigger knowledge base parse",
			"identity_key", doc.IdentityKey,
			"kb_document_id", kbDoc.ID,
			"error", err,
		)
	}

	id := kbDoc.ID
	return &id, nil
}

func (o *IngestionOrchestrator) ensureCollection(ctx context.Context) (string, error) {
	o.collectionMu.Lock()
	defer o.collectionMu.Unlock()
	if o.collectionID != "" {
		return o.collectionID, nil
	}
	id, err := o.knowledgeBase.EnsureCollection(ctx, o.collection)
	if err != nil {
		return "", err
	}
	o.collectionID = id
	return id, nil
}

// buildReport assembles the complete row. When reprocessing, only the ID and
// creation time carry over from the existing report.
func (o *IngestionOrchestrator) buildReport(existing *domain.Report, doc *domain.SourceDocument, title string, meta domain.ReportMetadata, kbDocID *string, extraction *domain.ExtractionResult, audit *domain.AuditReport) *domain.Report {
	report := &domain.Report{
		ID:                 uuid.NewString(),
		IdentityKey:        doc.IdentityKey,
		Title:              title,
		Organization:       meta.Organization,
		Year:               meta.Year,
		Category:           meta.Category,
		PageCount:          doc.PageCount,
		SourcePath:         doc.Path,
		KnowledgeBaseDocID: kbDocID,
		Status:             domain.ReportStatusCompleted,
	}
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now
	if existing != nil {
		report.ID = existing.ID
		if !existing.CreatedAt.IsZero() {
			report.CreatedAt = existing.CreatedAt
		}
	}
	report.ApplyExtraction(extraction)
	report.ApplyAudit(audit)
	return report
}

// stage runs fn inside a span and records its duration and outcome.
// A non-nil error from fn is returned wrapped in a *domain.StageError.
func (o *IngestionOrchestrator) stage(ctx context.Context, stage domain.Stage, key string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, string(stage), trace.WithAttributes(attribute.String("identity_key", key)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	o.metrics.ObserveStage(stage, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.NewStageError(stage, err)
	}
	return nil
}
