package driving

import (
	"context"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// Coordinator sequences importer runs and owns their cursors.
type Coordinator interface {
	// RunImporter runs one importer to completion or failure.
	// The summary is returned even when err is non-nil, except for
	// unknown importers.
	RunImporter(ctx context.Context, importerID string, mode domain.RunMode) (*domain.RunSummary, error)

	// Sweep runs every enabled importer in declaration order.
	// A failing importer never stops the others.
	Sweep(ctx context.Context, mode domain.RunMode) ([]domain.RunSummary, error)

	// Importers returns the bindings in declaration order.
	Importers() []domain.ImporterBinding

	// Status returns the live status of an importer.
	Status(ctx context.Context, importerID string) (*RunStatus, error)

	// History returns recent run summaries, most recent first.
	History(ctx context.Context, importerID string, limit int) ([]domain.RunSummary, error)
}

// RunStatus represents the current state of an importer.
type RunStatus struct {
	// ImporterID identifies the importer.
	ImporterID string

	// Running indicates if a run is currently in progress.
	Running bool

	// State is the importer state machine's current state.
	State domain.RunState

	// Counts are the live counters of the running run.
	Counts domain.RunCounts

	// Cursor is the persisted cursor, nil if the importer never ran.
	Cursor *domain.SyncCursor
}
