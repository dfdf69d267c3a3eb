package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driving"
	"github.com/custodia-labs/openleg-sync/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// taskHistoryRetention is how many results per task are kept.
const taskHistoryRetention = 100

// Scheduler runs the periodic incremental sweep.
// It is a pure core service with no external control API.
type Scheduler struct {
	clock driven.Clock
	cfg   domain.SchedulerConfig
	store driven.SchedulerStore
	coord driving.Coordinator

	// tick is how often due tasks are checked.
	tick time.Duration

	mu       sync.Mutex
	running  bool
	inflight map[string]bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	cfg domain.SchedulerConfig,
	store driven.SchedulerStore,
	coord driving.Coordinator,
) *Scheduler {
	return &Scheduler{
		clock:    driven.SystemClock{},
		cfg:      cfg,
		store:    store,
		coord:    coord,
		tick:     time.Minute,
		inflight: make(map[string]bool),
	}
}

// ParseSchedule parses a standard five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, domain.NewConfigurationError("scheduler.cron", "invalid cron expression %q: %v", expr, err)
	}
	return sched, nil
}

// nextRun computes when a task is due after from. A cron schedule takes
// precedence over the interval.
func nextRun(task *domain.ScheduledTask, from time.Time) time.Time {
	if task.Schedule != "" {
		sched, err := ParseSchedule(task.Schedule)
		if err == nil {
			return sched.Next(from)
		}
		logger.Warn("scheduler: task %s: %v; falling back to interval", task.ID, err)
	}
	return from.Add(task.Interval)
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler and waits for running sweeps.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks ensures the configured tasks exist in the store. The
// master switch disables every task.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	taskCfg := s.cfg.GetTaskConfig(domain.TaskIDSweep)
	if !s.cfg.Enabled {
		taskCfg.Enabled = false
	}
	return s.ensureTask(ctx, domain.TaskIDSweep, "Openleg sweep", taskCfg)
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Schedule: cfg.Schedule,
			Enabled:  cfg.Enabled,
		}
		task.NextRun = nextRun(task, now)
	} else {
		if task.Interval != cfg.Interval || task.Schedule != cfg.Schedule {
			task.Interval = cfg.Interval
			task.Schedule = cfg.Schedule
			task.NextRun = nextRun(task, now)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks: %v", err)
		return
	}

	now := s.clock.Now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.runTask(ctx, &tasks[i])
		}
	}
}

// runTask executes a single task unless it is already running.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.inflight[task.ID] {
		s.mu.Unlock()
		return
	}
	s.inflight[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, task.ID)
			s.mu.Unlock()
		}()

		log := logger.With("task", task.ID)
		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: s.clock.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDSweep:
			err = s.runSweep(ctx, result)
		default:
			log.Warnw("unknown task")
			return
		}

		result.EndedAt = s.clock.Now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
			task.ConsecutiveFailures++
			log.Warnw("sweep failed", "error", err, "importers", result.FailedImporters,
				"consecutive", task.ConsecutiveFailures)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
			task.ConsecutiveFailures = 0
			log.Infow("sweep completed", "runs", len(result.RunIDs),
				"processed", result.ItemsProcessed, "failed", result.ItemsFailed)
		}

		task.LastRun = result.StartedAt
		task.NextRun = nextRun(task, result.EndedAt)

		// Bookkeeping outlives a cancelled sweep.
		storeCtx := context.WithoutCancel(ctx)
		if saveErr := s.store.SaveTask(storeCtx, task); saveErr != nil {
			log.Errorw("failed to save task", "error", saveErr)
		}
		if recordErr := s.store.RecordResult(storeCtx, result); recordErr != nil {
			log.Errorw("failed to record result", "error", recordErr)
		}
		if pruneErr := s.store.PruneHistory(storeCtx, taskHistoryRetention); pruneErr != nil {
			log.Errorw("failed to prune history", "error", pruneErr)
		}
	}()
}

// runSweep runs an incremental sweep and totals its outcomes into result.
func (s *Scheduler) runSweep(ctx context.Context, result *domain.TaskResult) error {
	if s.coord == nil {
		return nil
	}
	summaries, err := s.coord.Sweep(ctx, domain.RunModeIncremental)
	for _, sum := range summaries {
		result.ItemsProcessed += sum.Processed()
		result.ItemsFailed += sum.Rejected + sum.Failed
		if sum.RunID != "" {
			result.RunIDs = append(result.RunIDs, sum.RunID)
		}
		if !sum.Succeeded() {
			result.FailedImporters = append(result.FailedImporters, sum.ImporterID)
		}
	}
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}

// Tasks returns the persisted task state.
func (s *Scheduler) Tasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list tasks", Err: err}
	}
	return tasks, nil
}

// TaskHistory returns recent results of a task, most recent first.
func (s *Scheduler) TaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 {
		limit = taskHistoryRetention
	}
	results, err := s.store.GetTaskHistory(ctx, taskID, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "task history", Err: err}
	}
	return results, nil
}
