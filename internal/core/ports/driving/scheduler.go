package driving

import (
	"context"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// Scheduler runs periodic sweeps.
type Scheduler interface {
	// Start blocks, sweeping whenever the task is due, until ctx is
	// cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the loop started by Start.
	Stop() error

	// Tasks returns the persisted task state.
	Tasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// TaskHistory returns recent sweep results, most recent first.
	TaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)
}
