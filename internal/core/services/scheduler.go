package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
)

// Verify interface compliance
var (
	_ driving.Scheduler       = (*Scheduler)(nil)
	_ driving.ScheduleService = (*Scheduler)(nil)
)

// schedulerLockName guards the due-task check across instances.
const schedulerLockName = "scheduler"

// Scheduler turns recurring schedules (the periodic library scan) into queue
// tasks. With several workers, a DistributedLock makes sure only one of them
// polls per cycle so a due scan is enqueued once.
type Scheduler struct {
	store        driven.SchedulerStore
	taskQueue    driven.TaskQueue
	lock         driven.DistributedLock
	logger       *slog.Logger
	pollInterval time.Duration
	lockTTL      time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store     driven.SchedulerStore
	TaskQueue driven.TaskQueue
	// Lock is optional. When set, a cycle that cannot take it is skipped.
	Lock         driven.DistributedLock
	Logger       *slog.Logger
	PollInterval time.Duration // default 30s
	LockTTL      time.Duration // default 2x PollInterval
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 30 * time.Second
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * poll
	}

	return &Scheduler{
		store:        cfg.Store,
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       logger.With("component", "scheduler"),
		pollInterval: poll,
		lockTTL:      lockTTL,
	}
}

// Start launches the polling loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("scheduler starting", "poll_interval", s.pollInterval)
	go s.loop(loopCtx, s.done)
	return nil
}

// Stop ends the polling loop and waits for an in-progress cycle, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick enqueues every schedule that is due.
func (s *Scheduler) tick(ctx context.Context) {
	release, ok := s.acquire(ctx)
	if !ok {
		return
	}
	defer release()

	due, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		s.logger.Error("failed to load due schedules", "error", err)
		return
	}

	for _, scheduled := range due {
		if !scheduled.IsDue() {
			continue
		}
		task, err := s.fire(ctx, scheduled)
		if err != nil {
			s.logger.Error("failed to enqueue scheduled task", "scheduled_id", scheduled.ID, "error", err)
			continue
		}
		s.logger.Info("enqueued scheduled task",
			"scheduled_id", scheduled.ID,
			"task_id", task.ID,
			"task_type", task.Type,
		)
	}
}

// acquire takes the scheduler lock when one is configured. The returned
// release func is safe to call when no lock is in use.
func (s *Scheduler) acquire(ctx context.Context) (func(), bool) {
	if s.lock == nil {
		return func() {}, true
	}

	acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
	if err != nil {
		s.logger.Warn("failed to acquire scheduler lock, skipping cycle", "error", err)
		return nil, false
	}
	if !acquired {
		s.logger.Debug("scheduler lock held by another instance, skipping cycle")
		return nil, false
	}
	return func() {
		// The cycle may have been cut short by shutdown; the lock still goes back
		if err := s.lock.Release(context.WithoutCancel(ctx), schedulerLockName); err != nil {
			s.logger.Warn("failed to release scheduler lock", "error", err)
		}
	}, true
}

// fire enqueues one run of scheduled and records the outcome on the schedule.
func (s *Scheduler) fire(ctx context.Context, scheduled *domain.ScheduledTask) (*domain.Task, error) {
	task := domain.NewTask(scheduled.Type, maps.Clone(scheduled.Payload))
	// A missed scan is picked up by the next interval
	if scheduled.Type == domain.TaskTypeScanLibrary {
		task.MaxAttempts = 1
	}

	lastError := ""
	enqueueErr := s.taskQueue.Enqueue(ctx, task)
	if enqueueErr != nil {
		lastError = enqueueErr.Error()
	}
	if err := s.store.UpdateLastRun(ctx, scheduled.ID, lastError); err != nil {
		s.logger.Warn("failed to record scheduled run", "scheduled_id", scheduled.ID, "error", err)
	}
	if enqueueErr != nil {
		return nil, enqueueErr
	}
	return task, nil
}

// EnsureScheduledTasks saves each task that does not exist yet. Existing
// tasks keep their stored interval and enabled flag.
func (s *Scheduler) EnsureScheduledTasks(ctx context.Context, tasks []*domain.ScheduledTask) error {
	for _, t := range tasks {
		_, err := s.store.GetScheduledTask(ctx, t.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to load scheduled task %s: %w", t.ID, err)
		}
		if err := s.store.SaveScheduledTask(ctx, t); err != nil {
			return fmt.Errorf("failed to save scheduled task %s: %w", t.ID, err)
		}
		s.logger.Info("registered scheduled task", "scheduled_id", t.ID, "interval", t.Interval)
	}
	return nil
}

// ListSchedules returns every stored schedule.
func (s *Scheduler) ListSchedules(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.store.ListScheduledTasks(ctx)
}

// SetScheduleEnabled pauses or resumes a schedule.
func (s *Scheduler) SetScheduleEnabled(ctx context.Context, id string, enabled bool) (*domain.ScheduledTask, error) {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if scheduled.Enabled == enabled {
		return scheduled, nil
	}
	scheduled.Enabled = enabled
	if err := s.store.SaveScheduledTask(ctx, scheduled); err != nil {
		return nil, fmt.Errorf("failed to save scheduled task %s: %w", id, err)
	}
	s.logger.Info("schedule updated", "scheduled_id", id, "enabled", enabled)
	return scheduled, nil
}

// TriggerSchedule enqueues a schedule immediately, even when it is disabled
// or not yet due.
func (s *Scheduler) TriggerSchedule(ctx context.Context, id string) (*domain.Task, error) {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task, err := s.fire(ctx, scheduled)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", id, err)
	}
	s.logger.Info("schedule triggered manually", "scheduled_id", id, "task_id", task.ID)
	return task, nil
}
