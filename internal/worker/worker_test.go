package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven/mocks"
)

// mockTaskQueue implements driven.TaskQueue for testing
type mockTaskQueue struct {
	mu           sync.Mutex
	tasks        []*domain.Task
	enqueued     []*domain.Task
	acked        map[string]string
	nacked       map[string]string
	dequeueDelay time.Duration
	dequeueFn    func() (*domain.Task, error)
	enqueueFn    func(*domain.Task) error
	ackErr       error
	nackErr      error
	pingFn       func() error
}

func newMockTaskQueue() *mockTaskQueue {
	return &mockTaskQueue{
		acked:  make(map[string]string),
		nacked: make(map[string]string),
	}
}

// Verify interface compliance
var _ driven.TaskQueue = (*mockTaskQueue)(nil)

func (m *mockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	if m.enqueueFn != nil {
		if err := m.enqueueFn(task); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	m.enqueued = append(m.enqueued, task)
	return nil
}

func (m *mockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if m.dequeueDelay > 0 {
		select {
		case <-time.After(m.dequeueDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.dequeueFn != nil {
		return m.dequeueFn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil, nil
	}
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	return task, nil
}

func (m *mockTaskQueue) Ack(ctx context.Context, taskID string, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked[taskID] = result
	return m.ackErr
}

func (m *mockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked[taskID] = reason
	return m.nackErr
}

func (m *mockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return nil, domain.ErrTaskNotFound
}

func (m *mockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &driven.QueueStats{PendingCount: int64(len(m.tasks))}, nil
}

func (m *mockTaskQueue) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn()
	}
	return nil
}

func (m *mockTaskQueue) Close() error {
	return nil
}

func (m *mockTaskQueue) ackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked)
}

// mockIngester implements Ingester for testing
type mockIngester struct {
	mu      sync.Mutex
	folders []string
	opts    []domain.IngestOptions
	fn      func(folder string) (*domain.IngestResult, error)
}

func (m *mockIngester) Ingest(ctx context.Context, folder string, opts domain.IngestOptions) (*domain.IngestResult, error) {
	m.mu.Lock()
	m.folders = append(m.folders, folder)
	m.opts = append(m.opts, opts)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(folder)
	}
	return &domain.IngestResult{ID: "report-1", Status: domain.IngestStatusProcessed, Title: folder}, nil
}

// mockBatchRunner implements BatchRunner for testing
type mockBatchRunner struct {
	roots []string
	reqs  []domain.BatchRequest
	err   error
	// run, when set, is called with the batch context before the summary is built
	run func(ctx context.Context)
}

func (m *mockBatchRunner) RunLibrary(ctx context.Context, root string, req domain.BatchRequest) (*domain.BatchJob, error) {
	m.roots = append(m.roots, root)
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.run != nil {
		m.run(ctx)
	}
	job := domain.NewBatchJob(3, 0)
	job.RecordResult(domain.IngestStatusProcessed)
	job.RecordResult(domain.IngestStatusAlreadyExists)
	job.RecordFailure("broken_doc", domain.NewStageError(domain.StageRead, domain.ErrEmptySource))
	job.Complete()
	return job, nil
}

// mockScheduler implements driving.Scheduler for testing
type mockScheduler struct {
	started, stopped int
	startErr         error
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.started++
	return m.startErr
}

func (m *mockScheduler) Stop(ctx context.Context) error {
	m.stopped++
	return nil
}

func newTestWorker(queue *mockTaskQueue, ingester Ingester, batches BatchRunner) *Worker {
	return NewWorker(WorkerConfig{
		TaskQueue:      queue,
		Ingester:       ingester,
		Batches:        batches,
		LibraryRoot:    "/data/library",
		Concurrency:    1,
		DequeueTimeout: 1,
	})
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{TaskQueue: newMockTaskQueue()})

	if w.concurrency != 1 {
		t.Errorf("expected default concurrency 1, got %d", w.concurrency)
	}
	if w.dequeueTimeout != 5 {
		t.Errorf("expected default dequeue timeout 5, got %d", w.dequeueTimeout)
	}
	if w.lockTTL != 2*time.Minute {
		t.Errorf("expected default lock TTL 2m, got %v", w.lockTTL)
	}
}

func TestNewWorker(t *testing.T) {
	w := NewWorker(WorkerConfig{
		TaskQueue:      newMockTaskQueue(),
		Logger:         slog.Default(),
		Concurrency:    4,
		DequeueTimeout: 2,
	})

	if w.concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", w.concurrency)
	}
	if w.dequeueTimeout != 2 {
		t.Errorf("expected dequeue timeout 2, got %d", w.dequeueTimeout)
	}
}

func TestWorker_StartStop(t *testing.T) {
	queue := newMockTaskQueue()
	// Add delay so workers don't spin too fast
	queue.dequeueDelay = 50 * time.Millisecond

	w := newTestWorker(queue, nil, nil)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if !w.isRunning() {
		t.Error("expected worker to be running")
	}

	// Start again should be no-op
	if err := w.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
	if w.isRunning() {
		t.Error("expected worker to be stopped")
	}

	// Stop again should be no-op
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("second stop should not error: %v", err)
	}
}

func TestWorker_StartsScheduler(t *testing.T) {
	queue := newMockTaskQueue()
	queue.dequeueDelay = 20 * time.Millisecond
	scheduler := &mockScheduler{}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Scheduler: scheduler, DequeueTimeout: 1})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
	if scheduler.started != 1 || scheduler.stopped != 1 {
		t.Errorf("scheduler started %d, stopped %d; want 1 and 1", scheduler.started, scheduler.stopped)
	}
}

func TestWorker_SchedulerStartError(t *testing.T) {
	w := NewWorker(WorkerConfig{
		TaskQueue: newMockTaskQueue(),
		Scheduler: &mockScheduler{startErr: errors.New("store down")},
	})

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}
	if w.isRunning() {
		t.Error("worker should not run when the scheduler failed to start")
	}
}

func TestWorker_ProcessTask_Ingest(t *testing.T) {
	queue := newMockTaskQueue()
	ingester := &mockIngester{}
	w := newTestWorker(queue, ingester, nil)

	task := domain.NewIngestTask("/data/library/BCG_AI_2024", domain.IngestOptions{ForceReprocess: true, Audit: true})
	w.processTask(context.Background(), task, w.logger)

	if len(ingester.folders) != 1 || ingester.folders[0] != "/data/library/BCG_AI_2024" {
		t.Fatalf("ingested folders = %v", ingester.folders)
	}
	if !ingester.opts[0].ForceReprocess || !ingester.opts[0].Audit {
		t.Errorf("options = %+v, want force and audit", ingester.opts[0])
	}

	result, ok := queue.acked[task.ID]
	if !ok {
		t.Fatal("expected task to be acked")
	}
	var decoded domain.IngestResult
	if err := json.Unmarshal([]byte(result), &decoded); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if decoded.Status != domain.IngestStatusProcessed {
		t.Errorf("Status = %s, want processed", decoded.Status)
	}
}

func TestWorker_ProcessTask_IngestFailure(t *testing.T) {
	queue := newMockTaskQueue()
	ingester := &mockIngester{fn: func(string) (*domain.IngestResult, error) {
		return nil, domain.NewStageError(domain.StageExtract, domain.ErrCompletionTimeout)
	}}
	w := newTestWorker(queue, ingester, nil)

	task := domain.NewIngestTask("/data/library/slow", domain.IngestOptions{})
	w.processTask(context.Background(), task, w.logger)

	reason, ok := queue.nacked[task.ID]
	if !ok {
		t.Fatal("expected task to be nacked")
	}
	if reason == "" {
		t.Error("expected a failure reason")
	}
	if len(queue.acked) != 0 {
		t.Errorf("expected no ack, got %d", len(queue.acked))
	}
}

func TestWorker_ProcessTask_MissingFolder(t *testing.T) {
	queue := newMockTaskQueue()
	ingester := &mockIngester{}
	w := newTestWorker(queue, ingester, nil)

	task := domain.NewTask(domain.TaskTypeIngestDocument, nil)
	w.processTask(context.Background(), task, w.logger)

	if _, ok := queue.nacked[task.ID]; !ok {
		t.Error("expected task to be nacked")
	}
	if len(ingester.folders) != 0 {
		t.Error("ingester should not be called")
	}
}

func TestWorker_ProcessTask_NoHandlers(t *testing.T) {
	queue := newMockTaskQueue()
	w := newTestWorker(queue, nil, nil)

	tasks := []*domain.Task{
		domain.NewIngestTask("/data/library/a", domain.IngestOptions{}),
		domain.NewBatchTask("/data/library", domain.BatchRequest{}),
	}
	for _, task := range tasks {
		w.processTask(context.Background(), task, w.logger)
		if _, ok := queue.nacked[task.ID]; !ok {
			t.Errorf("expected %s task to be nacked", task.Type)
		}
	}
}

func TestWorker_ProcessTask_UnknownType(t *testing.T) {
	queue := newMockTaskQueue()
	w := newTestWorker(queue, nil, nil)

	task := &domain.Task{ID: "task-1", Type: domain.TaskType("unknown_type")}
	w.processTask(context.Background(), task, w.logger)

	if _, ok := queue.nacked["task-1"]; !ok {
		t.Error("expected unknown task to be nacked")
	}
}

func TestWorker_ProcessTask_Batch(t *testing.T) {
	queue := newMockTaskQueue()
	batches := &mockBatchRunner{}
	w := newTestWorker(queue, nil, batches)

	task := domain.NewBatchTask("/mnt/reports", domain.BatchRequest{
		MaxConcurrency: 3,
		Limit:          10,
		Filters:        []string{"BCG"},
	})
	w.processTask(context.Background(), task, w.logger)

	if len(batches.roots) != 1 || batches.roots[0] != "/mnt/reports" {
		t.Fatalf("roots = %v", batches.roots)
	}
	req := batches.reqs[0]
	if req.MaxConcurrency != 3 || req.Limit != 10 || len(req.Filters) != 1 {
		t.Errorf("request = %+v", req)
	}

	result, ok := queue.acked[task.ID]
	if !ok {
		t.Fatal("a batch with per-document failures is still acked")
	}
	var summary domain.BatchSummary
	if err := json.Unmarshal([]byte(result), &summary); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if summary.Total != 3 || summary.Failed != 1 || !summary.Accounted() {
		t.Errorf("summary = %+v", summary)
	}
}

func TestWorker_ProcessTask_BatchError(t *testing.T) {
	queue := newMockTaskQueue()
	batches := &mockBatchRunner{err: domain.ErrNotFound}
	w := newTestWorker(queue, nil, batches)

	task := domain.NewBatchTask("/missing", domain.BatchRequest{})
	w.processTask(context.Background(), task, w.logger)

	if _, ok := queue.nacked[task.ID]; !ok {
		t.Error("expected task to be nacked")
	}
}

func TestWorker_ProcessTask_BatchLocked(t *testing.T) {
	queue := newMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.SetLockHeld("batch:/data/library", time.Minute)
	batches := &mockBatchRunner{}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Batches: batches, Lock: lock, LibraryRoot: "/data/library"})

	task := domain.NewBatchTask("/data/library/", domain.BatchRequest{})
	w.processTask(context.Background(), task, w.logger)

	if len(batches.roots) != 0 {
		t.Errorf("batch ran while another worker held the root: %v", batches.roots)
	}
	var result batchResult
	if err := json.Unmarshal([]byte(queue.acked[task.ID]), &result); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if result.SkippedReason == "" {
		t.Error("expected a skipped reason")
	}
}

func TestWorker_ProcessTask_BatchLockHeartbeat(t *testing.T) {
	queue := newMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	batches := &mockBatchRunner{run: func(ctx context.Context) {
		time.Sleep(120 * time.Millisecond)
	}}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Batches: batches, Lock: lock, LockTTL: 60 * time.Millisecond})

	task := domain.NewBatchTask("/data/library", domain.BatchRequest{})
	w.processTask(context.Background(), task, w.logger)

	if _, ok := queue.acked[task.ID]; !ok {
		t.Fatal("expected batch to be acked")
	}
	if lock.Extensions() == 0 {
		t.Error("expected the lock to be extended while the batch ran")
	}
	if lock.IsHeld("batch:/data/library") {
		t.Error("expected the lock to be released after the batch")
	}
}

func TestWorker_ProcessTask_BatchLockLost(t *testing.T) {
	queue := newMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.ExtendFn = func(string) error { return domain.ErrLockNotHeld }

	var cancelled bool
	batches := &mockBatchRunner{run: func(ctx context.Context) {
		select {
		case <-ctx.Done():
			cancelled = true
		case <-time.After(2 * time.Second):
		}
	}}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Batches: batches, Lock: lock, LockTTL: 30 * time.Millisecond})

	w.processTask(context.Background(), domain.NewBatchTask("/data/library", domain.BatchRequest{}), w.logger)

	if !cancelled {
		t.Error("expected the batch context to be cancelled when the lock is lost")
	}
}

func TestWorker_ProcessTask_BatchLockError(t *testing.T) {
	queue := newMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.AcquireFn = func(string, time.Duration) (bool, error) { return false, errors.New("redis down") }
	batches := &mockBatchRunner{}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Batches: batches, Lock: lock})

	task := domain.NewBatchTask("/data/library", domain.BatchRequest{})
	w.processTask(context.Background(), task, w.logger)

	if _, ok := queue.nacked[task.ID]; !ok {
		t.Error("expected task to be nacked so it is retried")
	}
	if len(batches.roots) != 0 {
		t.Error("batch should not run without the lock")
	}
}

func TestWorker_ProcessTask_ScanLibrary(t *testing.T) {
	queue := newMockTaskQueue()
	w := newTestWorker(queue, nil, &mockBatchRunner{})

	// No root in the payload falls back to the configured library root
	scan := domain.NewTask(domain.TaskTypeScanLibrary, nil)
	w.processTask(context.Background(), scan, w.logger)

	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(queue.enqueued))
	}
	batch := queue.enqueued[0]
	if batch.Type != domain.TaskTypeRunBatch {
		t.Errorf("Type = %s, want run_batch", batch.Type)
	}
	if batch.Root() != "/data/library" {
		t.Errorf("Root() = %q, want /data/library", batch.Root())
	}

	var result scanResult
	if err := json.Unmarshal([]byte(queue.acked[scan.ID]), &result); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if result.BatchTaskID != batch.ID {
		t.Errorf("BatchTaskID = %q, want %q", result.BatchTaskID, batch.ID)
	}
}

func TestWorker_ProcessTask_ScanEnqueueError(t *testing.T) {
	queue := newMockTaskQueue()
	queue.enqueueFn = func(*domain.Task) error { return errors.New("queue full") }
	w := newTestWorker(queue, nil, nil)

	scan := domain.NewTask(domain.TaskTypeScanLibrary, map[string]string{domain.PayloadRoot: "/data/other"})
	w.processTask(context.Background(), scan, w.logger)

	if _, ok := queue.nacked[scan.ID]; !ok {
		t.Error("expected scan task to be nacked")
	}
}

func TestWorker_ProcessLoop_WithTasks(t *testing.T) {
	queue := newMockTaskQueue()
	queue.dequeueDelay = 10 * time.Millisecond
	_ = queue.Enqueue(context.Background(), domain.NewIngestTask("/data/library/a", domain.IngestOptions{}))
	_ = queue.Enqueue(context.Background(), domain.NewIngestTask("/data/library/b", domain.IngestOptions{}))

	w := NewWorker(WorkerConfig{
		TaskQueue:      queue,
		Ingester:       &mockIngester{},
		Concurrency:    2,
		DequeueTimeout: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for queue.ackedCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	w.Wait()

	if got := queue.ackedCount(); got != 2 {
		t.Errorf("expected 2 acks, got %d", got)
	}
}

func TestWorker_ProcessLoop_DequeueError(t *testing.T) {
	queue := newMockTaskQueue()
	var mu sync.Mutex
	calls := 0
	queue.dequeueFn = func() (*domain.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("temporary error")
		}
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	}

	w := newTestWorker(queue, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	// The loop backs off for a second after an error, then keeps polling
	time.Sleep(1200 * time.Millisecond)
	cancel()
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Errorf("expected the loop to resume after an error, got %d calls", calls)
	}
}

func TestWorker_AckAndNackErrorsAreLogged(t *testing.T) {
	queue := newMockTaskQueue()
	queue.ackErr = errors.New("ack failed")
	queue.nackErr = errors.New("nack failed")
	w := newTestWorker(queue, &mockIngester{}, nil)

	ok := domain.NewIngestTask("/data/library/a", domain.IngestOptions{})
	bad := domain.NewTask(domain.TaskTypeIngestDocument, nil)

	// Neither call panics or blocks
	w.processTask(context.Background(), ok, w.logger)
	w.processTask(context.Background(), bad, w.logger)

	if _, found := queue.acked[ok.ID]; !found {
		t.Error("expected ack attempt")
	}
	if _, found := queue.nacked[bad.ID]; !found {
		t.Error("expected nack attempt")
	}
}
