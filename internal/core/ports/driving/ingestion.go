package driving

import (
	"context"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// IngestionService turns one source folder into a persisted report
type IngestionService interface {
	// Ingest runs the per-document pipeline. An existing report short-circuits
	// to already_exists unless opts.ForceReprocess is set.
	Ingest(ctx context.Context, folder string, opts domain.IngestOptions) (*domain.IngestResult, error)
}

// BatchService runs ingestion over many folders with bounded concurrency
type BatchService interface {
	// RunBatch ingests req.Folders and waits for all scheduled work to finish
	RunBatch(ctx context.Context, req domain.BatchRequest) (*domain.BatchJob, error)

	// RunLibrary lists the folders under root and runs them as one batch
	RunLibrary(ctx context.Context, root string, req domain.BatchRequest) (*domain.BatchJob, error)
}

// Scheduler manages periodic library scans
type Scheduler interface {
	Start(ctx context.Context) error

	Stop(ctx context.Context) error
}

// ScheduleService lets operators inspect and drive recurring tasks
type ScheduleService interface {
	ListSchedules(ctx context.Context) ([]*domain.ScheduledTask, error)

	// SetScheduleEnabled pauses or resumes a recurring task
	SetScheduleEnabled(ctx context.Context, id string, enabled bool) (*domain.ScheduledTask, error)

	// TriggerSchedule enqueues the task now and restarts its interval
	TriggerSchedule(ctx context.Context, id string) (*domain.Task, error)
}
