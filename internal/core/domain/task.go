package domain

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeIngestDocument ingests a single source folder
	TaskTypeIngestDocument TaskType = "ingest_document"
	// TaskTypeRunBatch ingests every folder under a library root
	TaskTypeRunBatch TaskType = "run_batch"
	// TaskTypeScanLibrary is the scheduled trigger that enqueues a batch over the library root
	TaskTypeScanLibrary TaskType = "scan_library"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Payload keys
const (
	PayloadFolder      = "folder"
	PayloadRoot        = "root"
	PayloadForce       = "force"
	PayloadAudit       = "audit"
	PayloadConcurrency = "concurrency"
	PayloadFilters     = "filters"
	PayloadLimit       = "limit"
)

// Task represents a background job to be processed by workers
type Task struct {
	ID   string   `json:"id"`
	Type TaskType `json:"type"`

	// Payload contains task-specific data
	// For ingest_document: {"folder": "/data/reports/BCG_AI_2024", "force": "false"}
	// For run_batch: {"root": "/data/reports", "concurrency": "5", "filters": "bcg,mckinsey"}
	Payload map[string]string `json:"payload"`

	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	Priority int `json:"priority"`

	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error,omitempty"`

	// Result holds a JSON summary of the outcome, set on completion
	Result string `json:"result,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, payload map[string]string) *Task {
	now := time.Now()
	if payload == nil {
		payload = map[string]string{}
	}
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewIngestTask creates a task to ingest one folder
func NewIngestTask(folder string, opts IngestOptions) *Task {
	return NewTask(TaskTypeIngestDocument, map[string]string{
		PayloadFolder: folder,
		PayloadForce:  strconv.FormatBool(opts.ForceReprocess),
		PayloadAudit:  strconv.FormatBool(opts.Audit),
	})
}

// NewBatchTask creates a task to ingest every folder under root.
// Batches run once; a failed batch is not retried as a whole.
func NewBatchTask(root string, req BatchRequest) *Task {
	t := NewTask(TaskTypeRunBatch, map[string]string{
		PayloadRoot:        root,
		PayloadForce:       strconv.FormatBool(req.ForceReprocess),
		PayloadAudit:       strconv.FormatBool(req.Audit),
		PayloadConcurrency: strconv.Itoa(req.MaxConcurrency),
		PayloadLimit:       strconv.Itoa(req.Limit),
		PayloadFilters:     strings.Join(req.Filters, ","),
	})
	t.MaxAttempts = 1
	return t
}

// Folder returns the folder payload (ingest_document tasks)
func (t *Task) Folder() string {
	return t.payload(PayloadFolder)
}

// Root returns the library root payload (run_batch tasks)
func (t *Task) Root() string {
	return t.payload(PayloadRoot)
}

// IngestOptions decodes ingestion flags from the payload
func (t *Task) IngestOptions() IngestOptions {
	return IngestOptions{
		ForceReprocess: t.boolPayload(PayloadForce),
		Audit:          t.boolPayload(PayloadAudit),
	}
}

// BatchRequest decodes batch parameters from the payload. Folders are
// resolved by the caller from Root.
func (t *Task) BatchRequest() BatchRequest {
	req := BatchRequest{
		ForceReprocess: t.boolPayload(PayloadForce),
		Audit:          t.boolPayload(PayloadAudit),
		MaxConcurrency: t.intPayload(PayloadConcurrency),
		Limit:          t.intPayload(PayloadLimit),
	}
	for _, f := range strings.Split(t.payload(PayloadFilters), ",") {
		if f = strings.TrimSpace(f); f != "" {
			req.Filters = append(req.Filters, f)
		}
	}
	return req
}

func (t *Task) payload(key string) string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload[key]
}

func (t *Task) boolPayload(key string) bool {
	v, _ := strconv.ParseBool(t.payload(key))
	return v
}

func (t *Task) intPayload(key string) int {
	v, _ := strconv.Atoi(t.payload(key))
	return v
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && time.Now().After(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted(result string) {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
	t.Result = result
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.UpdatedAt = now
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err

	// 1s, 2s, 4s, 8s, capped at 5 minutes
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	t.ScheduledFor = now.Add(backoff)
}

// ScheduledTask represents a recurring task configuration
type ScheduledTask struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      TaskType          `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	Interval  time.Duration     `json:"interval"`
	Enabled   bool              `json:"enabled"`
	LastRun   *time.Time        `json:"last_run,omitempty"`
	NextRun   time.Time         `json:"next_run"`
	LastError string            `json:"last_error,omitempty"`
}

// NewScheduledTask creates a new scheduled task
func NewScheduledTask(id, name string, taskType TaskType, payload map[string]string, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Payload:  payload,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && time.Now().After(s.NextRun)
}

// UpdateNextRun calculates the next run time after execution
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}

// LibraryScanID identifies the periodic scan of the library root.
const LibraryScanID = "library-scan"

// DefaultSchedulerConfig returns the default scheduled tasks
func DefaultSchedulerConfig(libraryRoot string, interval time.Duration) []*ScheduledTask {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return []*ScheduledTask{
		NewScheduledTask(
			LibraryScanID,
			"Library Scan",
			TaskTypeScanLibrary,
			map[string]string{PayloadRoot: libraryRoot},
			interval,
		),
	}
}
