package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.BatchService = (*BatchCoordinator)(nil)

// BatchCoordinator ingests many folders with a bounded number in flight.
// A failing document is recorded on the job and never affects its siblings.
type BatchCoordinator struct {
	ingestion      driving.IngestionService
	reader         driven.SourceReader
	maxConcurrency int
	maxFailures    int
	logger         *slog.Logger
}

// BatchCoordinatorConfig holds dependencies for BatchCoordinator.
type BatchCoordinatorConfig struct {
	Ingestion      driving.IngestionService
	Reader         driven.SourceReader // Used by RunLibrary to enumerate folders
	MaxConcurrency int                 // Default when a request sets none (default: 5)
	MaxFailures    int                 // Failure list bound (default: 100)
	Logger         *slog.Logger
}

// NewBatchCoordinator creates a new batch coordinator.
func NewBatchCoordinator(cfg BatchCoordinatorConfig) *BatchCoordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = domain.DefaultBatchConcurrency
	}
	return &BatchCoordinator{
		ingestion:      cfg.Ingestion,
		reader:         cfg.Reader,
		maxConcurrency: maxConcurrency,
		maxFailures:    cfg.MaxFailures,
		logger:         logger,
	}
}

// RunLibrary lists the document folders under root and ingests them.
func (b *BatchCoordinator) RunLibrary(ctx context.Context, root string, req domain.BatchRequest) (*domain.BatchJob, error) {
	if b.reader == nil {
		return nil, fmt.Errorf("no source reader configured: %w", domain.ErrServiceUnavailable)
	}
	folders, err := b.reader.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	req.Folders = folders
	return b.RunBatch(ctx, req)
}

// RunBatch ingests req.Folders and waits for every scheduled document.
// Cancelling ctx stops scheduling; documents already running finish on
// their own and the rest are recorded as failures with domain.ErrBatchCancelled.
func (b *BatchCoordinator) RunBatch(ctx context.Context, req domain.BatchRequest) (*domain.BatchJob, error) {
	folders := SelectFolders(req.Folders, req.Filters, req.Limit)
	limit := req.MaxConcurrency
	if limit <= 0 {
		limit = b.maxConcurrency
	}
	opts := domain.IngestOptions{ForceReprocess: req.ForceReprocess, Audit: req.Audit}

	job := domain.NewBatchJob(len(folders), b.maxFailures)
	b.logger.Info("starting batch",
		"batch_id", job.ID,
		"documents", len(folders),
		"max_concurrency", limit,
		"force", req.ForceReprocess,
	)

	// Documents keep running after the batch context is cancelled
	docCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, folder := range folders {
		if ctx.Err() != nil {
			b.cancelRemaining(job, folders[i:])
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				job.RecordFailure(filepath.Base(folder), domain.ErrBatchCancelled)
				return nil
			}
			b.ingestOne(docCtx, job, folder, opts)
			return nil
		})
	}
	_ = g.Wait()
	job.Complete()

	summary := job.Summary()
	b.logger.Info("batch complete",
		"batch_id", job.ID,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return job, nil
}

func (b *BatchCoordinator) ingestOne(ctx context.Context, job *domain.BatchJob, folder string, opts domain.IngestOptions) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic during ingestion", "folder", folder, "panic", r)
			job.RecordFailure(filepath.Base(folder), fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := b.ingestion.Ingest(ctx, folder, opts)
	if err != nil {
		job.RecordFailure(filepath.Base(folder), err)
		return
	}
	job.RecordResult(result.Status)
}

func (b *BatchCoordinator) cancelRemaining(job *domain.BatchJob, folders []string) {
	b.logger.Warn("batch cancelled, not scheduling remaining documents",
		"batch_id", job.ID,
		"remaining", len(folders),
	)
	for _, folder := range folders {
		job.RecordFailure(filepath.Base(folder), domain.ErrBatchCancelled)
	}
}

// SelectFolders keeps folders whose path contains any filter substring
// (case-insensitive) and applies the limit. Order is preserved.
func SelectFolders(folders, filters []string, limit int) []string {
	var out []string
	for _, f := range folders {
		if len(filters) > 0 && !matchesAny(f, filters) {
			continue
		}
		out = append(out, f)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func matchesAny(folder string, filters []string) bool {
	lower := strings.ToLower(folder)
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" && strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
