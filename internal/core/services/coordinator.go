package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driving"
	"github.com/custodia-labs/openleg-sync/internal/logger"
)

// Ensure Coordinator implements the interface.
var _ driving.Coordinator = (*Coordinator)(nil)

// historyRetention is how many runs per importer the run store keeps.
const historyRetention = 100

// defaultLeaseTTL bounds how long a crashed process can hold an importer's
// cursor lease. Running importers renew it on every page fetch.
const defaultLeaseTTL = 30 * time.Minute

// CoordinatorConfig holds the coordinator's tunables.
type CoordinatorConfig struct {
	// Workers bounds how many importers a sweep runs at once.
	Workers int

	// Retry is handed to every importer.
	Retry domain.RetrySettings

	// Clock defaults to the system clock.
	Clock driven.Clock

	// LeaseTTL is how long an unrenewed cursor lease blocks other processes.
	LeaseTTL time.Duration
}

// Coordinator sequences importer runs and is the only writer of cursors.
type Coordinator struct {
	requests  driven.RequestRegistry
	responses driven.ResponseRegistry
	processor driven.RecordProcessor
	cursors   driven.CursorStore
	runs      driven.RunStore
	cfg       CoordinatorConfig

	// owner identifies this coordinator's cursor leases.
	owner string

	// newRunID is swapped in tests.
	newRunID func() string

	mu        sync.RWMutex
	importers []*Importer
	byID      map[string]*Importer
	active    map[string]*driving.RunStatus
}

// NewCoordinator creates a coordinator for bindings. Every binding is
// validated up front; runs may be nil to disable run history.
func NewCoordinator(
	cfg CoordinatorConfig,
	requests driven.RequestRegistry,
	responses driven.ResponseRegistry,
	processor driven.RecordProcessor,
	cursors driven.CursorStore,
	runs driven.RunStore,
	bindings []domain.ImporterBinding,
) (*Coordinator, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = driven.SystemClock{}
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	c := &Coordinator{
		requests:  requests,
		responses: responses,
		processor: processor,
		cursors:   cursors,
		runs:      runs,
		cfg:       cfg,
		owner:     uuid.New().String(),
		newRunID:  func() string { return uuid.New().String() },
		active:    make(map[string]*driving.RunStatus),
	}
	if err := c.Reload(bindings); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload validates and swaps in a new set of bindings. Runs already in
// progress finish with the binding they started with.
func (c *Coordinator) Reload(bindings []domain.ImporterBinding) error {
	importers := make([]*Importer, 0, len(bindings))
	byID := make(map[string]*Importer, len(bindings))
	for _, b := range bindings {
		if _, dup := byID[b.ID]; dup {
			return domain.NewConfigurationError(b.ID, "duplicate importer id")
		}
		if err := ValidateBinding(b, c.requests, c.responses, c.processor); err != nil {
			return err
		}
		for _, dep := range b.DependsOn {
			if _, ok := byID[dep]; !ok {
				return domain.NewConfigurationError(b.ID, "depends on %q, which is not declared before it", dep)
			}
		}
		im := NewImporter(b, c.requests, c.responses, c.processor, c.cfg.Clock, c.cfg.Retry)
		importers = append(importers, im)
		byID[b.ID] = im
	}

	c.mu.Lock()
	c.importers = importers
	c.byID = byID
	c.mu.Unlock()
	return nil
}

// Importers returns the bindings in declaration order.
func (c *Coordinator) Importers() []domain.ImporterBinding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ImporterBinding, len(c.importers))
	for i, im := range c.importers {
		out[i] = im.Binding()
	}
	return out
}

func (c *Coordinator) importer(id string) (*Importer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	im, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownImporter, id)
	}
	return im, nil
}

// acquire takes the importer's exclusive run slot.
func (c *Coordinator) acquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[id]; busy {
		return false
	}
	c.active[id] = &driving.RunStatus{ImporterID: id, Running: true, State: domain.RunStateIdle}
	return true
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// lease takes the importer's cursor lease in the shared store, which
// excludes runs started by other processes on the same database.
func (c *Coordinator) lease(ctx context.Context, id string) error {
	err := c.cursors.Acquire(ctx, id, c.owner, c.cfg.Clock.Now(), c.cfg.LeaseTTL)
	switch {
	case errors.Is(err, domain.ErrCursorConflict):
		return fmt.Errorf("%w: %s is held by another process", domain.ErrCursorConflict, id)
	case err != nil:
		return &domain.StorageError{Op: "acquire cursor lease", Err: err}
	}
	return nil
}

func (c *Coordinator) observe(ctx context.Context, id string) RunObserver {
	return func(state domain.RunState, counts domain.RunCounts) {
		if state == domain.RunStateFetching {
			if err := c.lease(ctx, id); err != nil {
				logger.Warn("renew cursor lease for %s: %v", id, err)
			}
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if st, ok := c.active[id]; ok {
			st.State = state
			st.Counts = counts
		}
	}
}

// RunImporter runs one importer to completion or failure and persists
// the outcome. Cursor conflicts and configuration errors are returned
// before any network call.
func (c *Coordinator) RunImporter(ctx context.Context, importerID string, mode domain.RunMode) (*domain.RunSummary, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: run mode %q", domain.ErrInvalidInput, mode)
	}
	im, err := c.importer(importerID)
	if err != nil {
		return nil, err
	}
	if !im.Binding().Enabled {
		return nil, fmt.Errorf("%w: %s", domain.ErrImporterDisabled, importerID)
	}

	now := c.cfg.Clock.Now()
	if !c.acquire(importerID) {
		summary := &domain.RunSummary{ImporterID: importerID, Mode: mode, Started: now}
		err := fmt.Errorf("%w: %s", domain.ErrCursorConflict, importerID)
		summary.Fail(err, now)
		return summary, err
	}
	defer c.release(importerID)

	// Bookkeeping below must survive the caller cancelling the run.
	persistCtx := context.WithoutCancel(ctx)

	if err := c.lease(ctx, importerID); err != nil {
		summary := &domain.RunSummary{ImporterID: importerID, Mode: mode, Started: now}
		summary.Fail(err, c.cfg.Clock.Now())
		return summary, err
	}
	defer func() {
		if err := c.cursors.Release(persistCtx, importerID, c.owner); err != nil {
			logger.Warn("release cursor lease for %s: %v", importerID, err)
		}
	}()
	logger.Section(fmt.Sprintf("%s (%s)", importerID, mode))

	cursor, err := c.loadCursor(ctx, importerID)
	if err != nil {
		summary := &domain.RunSummary{RunID: c.newRunID(), ImporterID: importerID, Mode: mode, Started: now}
		summary.Fail(err, c.cfg.Clock.Now())
		c.recordRun(persistCtx, *summary)
		return summary, err
	}

	result, runErr := im.Run(ctx, c.newRunID(), mode, cursor, c.observe(persistCtx, importerID))
	summary := result.Summary

	var next domain.SyncCursor
	if runErr == nil {
		next = cursor.Advance(result.NextCursor, summary)
	} else {
		next = cursor.RecordFailure(summary)
	}
	if err := c.cursors.Save(persistCtx, next); err != nil {
		saveErr := &domain.StorageError{Op: "save cursor", Err: err}
		if runErr == nil {
			// The records are written but the cursor did not move; the next
			// run re-fetches the same window.
			summary.Fail(saveErr, c.cfg.Clock.Now())
			runErr = saveErr
		} else {
			runErr = errors.Join(runErr, saveErr)
		}
	}

	c.recordRun(persistCtx, summary)
	return &summary, runErr
}

func (c *Coordinator) loadCursor(ctx context.Context, importerID string) (domain.SyncCursor, error) {
	cursor, err := c.cursors.Get(ctx, importerID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.SyncCursor{ImporterID: importerID}, nil
	case err != nil:
		return domain.SyncCursor{}, &domain.StorageError{Op: "load cursor", Err: err}
	}
	return *cursor, nil
}

func (c *Coordinator) recordRun(ctx context.Context, summary domain.RunSummary) {
	if c.runs == nil {
		return
	}
	if err := c.runs.RecordRun(ctx, summary); err != nil {
		logger.Warn("record run %s: %v", summary.RunID, err)
		return
	}
	if err := c.runs.PruneRuns(ctx, historyRetention); err != nil {
		logger.Warn("prune run history: %v", err)
	}
}

// Sweep runs every enabled importer, at most Workers at a time. An
// importer starts only after the enabled importers it depends on have
// finished, whatever their outcome. Results are returned in declaration
// order; a failing importer never stops the others. The error joins every
// run's terminal error.
func (c *Coordinator) Sweep(ctx context.Context, mode domain.RunMode) ([]domain.RunSummary, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: run mode %q", domain.ErrInvalidInput, mode)
	}

	var enabled []domain.ImporterBinding
	for _, b := range c.Importers() {
		if b.Enabled {
			enabled = append(enabled, b)
		}
	}

	summaries := make([]*domain.RunSummary, len(enabled))
	errs := make([]error, len(enabled))
	done := make(map[string]chan struct{}, len(enabled))
	for _, b := range enabled {
		done[b.ID] = make(chan struct{})
	}

	// Dependencies are declared earlier, so they are already scheduled
	// when a dependent takes a worker slot to wait on them.
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, b := range enabled {
		g.Go(func() error {
			defer close(done[b.ID])
			for _, dep := range b.DependsOn {
				if ch, ok := done[dep]; ok {
					<-ch
				}
			}
			summary, err := c.RunImporter(ctx, b.ID, mode)
			summaries[i] = summary
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", b.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.RunSummary, 0, len(enabled))
	for _, s := range summaries {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, errors.Join(errs...)
}

// Status returns the live status of an importer with its persisted cursor.
func (c *Coordinator) Status(ctx context.Context, importerID string) (*driving.RunStatus, error) {
	if _, err := c.importer(importerID); err != nil {
		return nil, err
	}

	c.mu.RLock()
	var status driving.RunStatus
	if st, ok := c.active[importerID]; ok {
		status = *st
	} else {
		status = driving.RunStatus{ImporterID: importerID, State: domain.RunStateIdle}
	}
	c.mu.RUnlock()

	cursor, err := c.cursors.Get(ctx, importerID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, &domain.StorageError{Op: "load cursor", Err: err}
	default:
		status.Cursor = cursor
	}
	return &status, nil
}

// History returns recent run summaries, most recent first. An empty
// importerID lists every importer.
func (c *Coordinator) History(ctx context.Context, importerID string, limit int) ([]domain.RunSummary, error) {
	if importerID != "" {
		if _, err := c.importer(importerID); err != nil {
			return nil, err
		}
	}
	if c.runs == nil {
		return nil, nil
	}
	runs, err := c.runs.ListRuns(ctx, importerID, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "list runs", Err: err}
	}
	return runs, nil
}
