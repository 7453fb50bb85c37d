package domain

import (
	"sync"
	"time"
)

// DefaultBatchConcurrency is the in-flight document limit when none is given.
const DefaultBatchConcurrency = 5

// DefaultMaxBatchFailures bounds the per-item failure list.
const DefaultMaxBatchFailures = 100

// BatchRequest describes one batch run.
type BatchRequest struct {
	Folders        []string `json:"folders"`
	MaxConcurrency int      `json:"max_concurrency"`
	ForceReprocess bool     `json:"force_reprocess"`
	Audit          bool     `json:"audit"`

	// Filters keep only folders whose path contains one of the substrings.
	Filters []string `json:"filters,omitempty"`

	// Limit caps the number of folders processed, 0 for no limit.
	Limit int `json:"limit,omitempty"`
}

// BatchFailure is one failed document.
type BatchFailure struct {
	IdentityKey string `json:"identity_key"`
	Stage       Stage  `json:"stage,omitempty"`
	Message     string `json:"message"`
}

// BatchJob aggregates the outcome of a batch. Safe for concurrent use.
type BatchJob struct {
	ID string `json:"id"`

	mu          sync.Mutex
	total       int
	processed   int
	skipped     int
	failed      int
	failures    []BatchFailure
	maxFailures int
	truncated   bool
	startedAt   time.Time
	completedAt *time.Time
}

// NewBatchJob creates a job for total documents. maxFailures <= 0 uses the default.
func NewBatchJob(total, maxFailures int) *BatchJob {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxBatchFailures
	}
	return &BatchJob{
		ID:          GenerateID(),
		total:       total,
		maxFailures: maxFailures,
		startedAt:   time.Now(),
	}
}

// RecordResult counts a successful ingestion.
func (j *BatchJob) RecordResult(status IngestStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if status == IngestStatusAlreadyExists {
		j.skipped++
		return
	}
	j.processed++
}

// RecordFailure counts a failed document, keeping its message while the list has room.
func (j *BatchJob) RecordFailure(identityKey string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failed++
	if len(j.failures) >= j.maxFailures {
		j.truncated = true
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	j.failures = append(j.failures, BatchFailure{
		IdentityKey: identityKey,
		Stage:       FailedStage(err),
		Message:     msg,
	})
}

// Complete marks the job finished.
func (j *BatchJob) Complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.completedAt = &now
}

// Summary returns a consistent snapshot of the job.
func (j *BatchJob) Summary() BatchSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	failures := make([]BatchFailure, len(j.failures))
	copy(failures, j.failures)
	s := BatchSummary{
		ID:                j.ID,
		Total:             j.total,
		Processed:         j.processed,
		Skipped:           j.skipped,
		Failed:            j.failed,
		Failures:          failures,
		FailuresTruncated: j.truncated,
		StartedAt:         j.startedAt,
	}
	if j.completedAt != nil {
		s.CompletedAt = j.completedAt
		s.Duration = j.completedAt.Sub(j.startedAt)
	}
	return s
}

// BatchSummary is an immutable snapshot of a BatchJob.
type BatchSummary struct {
	ID                string         `json:"id"`
	Total             int            `json:"total"`
	Processed         int            `json:"processed"`
	Skipped           int            `json:"skipped"`
	Failed            int            `json:"failed"`
	Failures          []BatchFailure `json:"failures"`
	FailuresTruncated bool           `json:"failures_truncated"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Duration          time.Duration  `json:"duration"`
}

// Accounted reports whether every document has an outcome.
func (s BatchSummary) Accounted() bool {
	return s.Processed+s.Skipped+s.Failed == s.Total
}
