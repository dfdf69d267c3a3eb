package driven

import (
	"context"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// RunStore keeps the history of importer runs.
type RunStore interface {
	// RecordRun stores a finished run summary.
	RecordRun(ctx context.Context, summary domain.RunSummary) error

	// ListRuns returns recent runs for an importer, most recent first.
	// An empty importerID lists runs of all importers.
	ListRuns(ctx context.Context, importerID string, limit int) ([]domain.RunSummary, error)

	// PruneRuns keeps the most recent 'keep' runs per importer.
	PruneRuns(ctx context.Context, keep int) error
}
