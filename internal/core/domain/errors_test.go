package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrAlreadyExists", ErrAlreadyExists, "already exists"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrEmptySource", ErrEmptySource, "empty source"},
		{"ErrUpload", ErrUpload, "knowledge base upload failed"},
		{"ErrExtractionParse", ErrExtractionParse, "extraction parse failed"},
		{"ErrCompletionTimeout", ErrCompletionTimeout, "completion timed out"},
		{"ErrPersistence", ErrPersistence, "persistence failed"},
		{"ErrFanOutItem", ErrFanOutItem, "data bank item write failed"},
		{"ErrInvalidProvider", ErrInvalidProvider, "invalid provider"},
		{"ErrServiceUnavailable", ErrServiceUnavailable, "service unavailable"},
		{"ErrLockNotHeld", ErrLockNotHeld, "lock not held"},
		{"ErrBatchCancelled", ErrBatchCancelled, "batch cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrEmptySource,
		ErrUpload,
		ErrExtractionParse,
		ErrCompletionTimeout,
		ErrPersistence,
		ErrFanOutItem,
		ErrInvalidProvider,
		ErrServiceUnavailable,
		ErrLockNotHeld,
		ErrBatchCancelled,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestStageError(t *testing.T) {
	err := NewStageError(StagePersist, fmt.Errorf("failed to insert report: %w", ErrPersistence))

	if !errors.Is(err, ErrPersistence) {
		t.Error("expected stage error to unwrap to ErrPersistence")
	}
	if got := FailedStage(err); got != StagePersist {
		t.Errorf("expected stage %q, got %q", StagePersist, got)
	}
	if err.Error() != "persist: failed to insert report: persistence failed" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	wrapped := fmt.Errorf("ingest doc: %w", err)
	if got := FailedStage(wrapped); got != StagePersist {
		t.Errorf("expected stage through wrapping, got %q", got)
	}
}

func TestStageError_Nil(t *testing.T) {
	if NewStageError(StageRead, nil) != nil {
		t.Error("expected nil for nil error")
	}
	if FailedStage(errors.New("plain")) != "" {
		t.Error("expected empty stage for plain error")
	}
}
