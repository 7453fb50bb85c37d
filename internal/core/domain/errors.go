package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource (or a parsable source file) was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptySource indicates the source text is empty or whitespace-only
	ErrEmptySource = errors.New("empty source")

	// ErrUpload indicates the knowledge base rejected an upload or parse request
	ErrUpload = errors.New("knowledge base upload failed")

	// ErrExtractionParse indicates the completion output was not a usable extraction object
	ErrExtractionParse = errors.New("extraction parse failed")

	// ErrCompletionTimeout indicates a completion call exceeded its deadline
	ErrCompletionTimeout = errors.New("completion timed out")

	// ErrPersistence indicates a report row could not be written
	ErrPersistence = errors.New("persistence failed")

	// ErrFanOutItem indicates a single data bank item could not be written
	ErrFanOutItem = errors.New("data bank item write failed")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates an external service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrLockNotAcquired indicates another instance holds the lock
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrLockNotHeld indicates a lock operation on a lock this instance does not own
	ErrLockNotHeld = errors.New("lock not held")

	// ErrQueueEmpty indicates no task was available before the dequeue timeout
	ErrQueueEmpty = errors.New("queue empty")

	// ErrTaskNotFound indicates the task ID is unknown to the queue
	ErrTaskNotFound = errors.New("task not found")

	// ErrBatchCancelled marks documents that were never scheduled because the batch was cancelled
	ErrBatchCancelled = errors.New("batch cancelled")
)

// Stage names an ingestion step for error reporting and metrics.
type Stage string

const (
	StageRead        Stage = "read"
	StageExistsCheck Stage = "exists_check"
	StageUpload      Stage = "upload"
	StageExtract     Stage = "extract"
	StageAudit       Stage = "audit"
	StagePersist     Stage = "persist"
	StageFanOut      Stage = "fan_out"
)

// StageError records which ingestion stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage it happened in.
func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// FailedStage returns the stage recorded on err, or "" if none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
