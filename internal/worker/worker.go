package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
)

// Ingester ingests a single document folder.
type Ingester interface {
	Ingest(ctx context.Context, folder string, opts domain.IngestOptions) (*domain.IngestResult, error)
}

// BatchRunner ingests every document folder under a library root.
type BatchRunner interface {
	RunLibrary(ctx context.Context, root string, req domain.BatchRequest) (*domain.BatchJob, error)
}

// Worker pulls ingestion tasks off the queue:
//
//	ingest_document  one folder through the pipeline
//	run_batch        every folder under a root, bounded by the batch coordinator
//	scan_library     scheduled trigger that enqueues a run_batch for the library root
type Worker struct {
	taskQueue   driven.TaskQueue
	ingester    Ingester
	batches     BatchRunner
	scheduler   driving.Scheduler
	lock        driven.DistributedLock
	lockTTL     time.Duration
	libraryRoot string
	logger      *slog.Logger

	concurrency    int
	dequeueTimeout int // seconds
	errorBackoff   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue driven.TaskQueue
	Ingester  Ingester
	Batches   BatchRunner
	// Scheduler is started and stopped with the worker when set.
	Scheduler driving.Scheduler
	// Lock keeps two workers from running batches over the same root.
	Lock        driven.DistributedLock
	LockTTL     time.Duration // default 2m, refreshed every third of it
	LibraryRoot string        // used by tasks without a root payload
	Logger      *slog.Logger

	Concurrency    int // default 1
	DequeueTimeout int // seconds, default 5
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		ingester:       cfg.Ingester,
		batches:        cfg.Batches,
		scheduler:      cfg.Scheduler,
		lock:           cfg.Lock,
		lockTTL:        lockTTL,
		libraryRoot:    cfg.LibraryRoot,
		logger:         logger.With("component", "worker"),
		concurrency:    max(cfg.Concurrency, 1),
		dequeueTimeout: dequeueTimeout,
		errorBackoff:   time.Second,
	}
}

// Start launches the processing loops (and the scheduler, if any).
// Calling Start on a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	var wg sync.WaitGroup
	for i := range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(loopCtx, i)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return nil
}

// Stop ends the processing loops and waits for in-flight tasks, or for ctx.
// A running batch stops scheduling new documents; documents already in
// flight finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}

	if w.scheduler != nil {
		if err := w.scheduler.Stop(ctx); err != nil {
			w.logger.Warn("failed to stop scheduler", "error", err)
		}
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("worker stop: %w", ctx.Err())
	}

	w.mu.Lock()
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	w.logger.Info("worker stopped")
	return nil
}

// Wait blocks until the processing loops exit.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Worker) processLoop(ctx context.Context, id int) {
	logger := w.logger.With("worker_id", id)

	for ctx.Err() == nil {
		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.errorBackoff):
			}
			continue
		}
		if task == nil {
			continue
		}
		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and acks it with a JSON result, or nacks it so
// the queue can retry. Queue bookkeeping survives cancellation of ctx.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	logger.Info("processing task")
	start := time.Now()

	var (
		result any
		err    error
	)
	switch task.Type {
	case domain.TaskTypeIngestDocument:
		// A started document runs to completion even when shutdown begins
		result, err = w.handleIngest(context.WithoutCancel(ctx), task)
	case domain.TaskTypeRunBatch:
		result, err = w.handleBatch(ctx, task, logger)
	case domain.TaskTypeScanLibrary:
		result, err = w.handleScan(context.WithoutCancel(ctx), task)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	queueCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.Error("task failed", "duration", time.Since(start), "error", err)
		if nackErr := w.taskQueue.Nack(queueCtx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logger.Warn("failed to encode task result", "error", err)
		payload = nil
	}
	logger.Info("task completed", "duration", time.Since(start))
	if ackErr := w.taskQueue.Ack(queueCtx, task.ID, string(payload)); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

func (w *Worker) handleIngest(ctx context.Context, task *domain.Task) (*domain.IngestResult, error) {
	if w.ingester == nil {
		return nil, fmt.Errorf("no ingester configured: %w", domain.ErrServiceUnavailable)
	}
	folder := task.Folder()
	if folder == "" {
		return nil, fmt.Errorf("folder missing from task payload: %w", domain.ErrInvalidInput)
	}
	return w.ingester.Ingest(ctx, folder, task.IngestOptions())
}

// batchResult is the ack payload of a run_batch task.
type batchResult struct {
	*domain.BatchSummary
	// SkippedReason is set when the batch did not run.
	SkippedReason string `json:"skipped_reason,omitempty"`
}

// handleBatch runs a library batch under a per-root lock. Per-document
// failures are part of the summary; only a batch that could not start
// fails the task.
func (w *Worker) handleBatch(ctx context.Context, task *domain.Task, logger *slog.Logger) (*batchResult, error) {
	if w.batches == nil {
		return nil, fmt.Errorf("no batch runner configured: %w", domain.ErrServiceUnavailable)
	}
	root := w.rootFor(task)
	if root == "" {
		return nil, fmt.Errorf("root missing from task payload: %w", domain.ErrInvalidInput)
	}

	batchCtx, release, err := w.lockRoot(ctx, root, logger)
	if err != nil {
		return nil, err
	}
	if batchCtx == nil {
		logger.Info("another worker is already processing this root", "root", root)
		return &batchResult{SkippedReason: "batch already running for " + root}, nil
	}
	defer release()

	job, err := w.batches.RunLibrary(batchCtx, root, task.BatchRequest())
	if err != nil {
		return nil, err
	}
	summary := job.Summary()
	if summary.Failed > 0 {
		logger.Warn("batch finished with failures",
			"batch_id", summary.ID,
			"processed", summary.Processed,
			"failed", summary.Failed,
		)
	}
	return &batchResult{BatchSummary: &summary}, nil
}

// lockRoot takes the batch lock for root and keeps it alive until release.
// It returns a nil context when the lock is held elsewhere. Losing the lock
// mid-batch cancels the returned context, which stops new documents.
func (w *Worker) lockRoot(ctx context.Context, root string, logger *slog.Logger) (context.Context, func(), error) {
	if w.lock == nil {
		return ctx, func() {}, nil
	}

	name := "batch:" + filepath.Clean(root)
	acquired, err := w.lock.Acquire(ctx, name, w.lockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock %s: %w", root, err)
	}
	if !acquired {
		return nil, nil, nil
	}

	batchCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(w.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-batchCtx.Done():
				return
			case <-ticker.C:
				if err := w.lock.Extend(batchCtx, name, w.lockTTL); err != nil {
					if batchCtx.Err() != nil {
						return
					}
					logger.Error("lost batch lock, stopping batch", "root", root, "error", err)
					cancel()
					return
				}
			}
		}
	}()

	release := func() {
		cancel()
		<-stopped
		if err := w.lock.Release(context.WithoutCancel(ctx), name); err != nil && !errors.Is(err, domain.ErrLockNotHeld) {
			logger.Warn("failed to release batch lock", "root", root, "error", err)
		}
	}
	return batchCtx, release, nil
}

type scanResult struct {
	BatchTaskID string `json:"batch_task_id"`
	Root        string `json:"root"`
}

// handleScan turns a scheduled library scan into a run_batch task. Existing
// reports are skipped by the pipeline, so a scan only processes new folders.
func (w *Worker) handleScan(ctx context.Context, task *domain.Task) (*scanResult, error) {
	root := w.rootFor(task)
	if root == "" {
		return nil, fmt.Errorf("no library root configured: %w", domain.ErrInvalidInput)
	}

	batch := domain.NewBatchTask(root, domain.BatchRequest{})
	if err := w.taskQueue.Enqueue(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}
	return &scanResult{BatchTaskID: batch.ID, Root: root}, nil
}

func (w *Worker) rootFor(task *domain.Task) string {
	if root := task.Root(); root != "" {
		return root
	}
	return w.libraryRoot
}
