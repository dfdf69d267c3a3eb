package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// CursorStore persists sync cursors keyed by importer id.
type CursorStore interface {
	// Save stores or updates a cursor.
	Save(ctx context.Context, cursor domain.SyncCursor) error

	// Get retrieves the cursor for an importer.
	// Returns domain.ErrNotFound if the importer has never run.
	Get(ctx context.Context, importerID string) (*domain.SyncCursor, error)

	// List returns all cursors ordered by importer id.
	List(ctx context.Context) ([]domain.SyncCursor, error)

	// Delete removes the cursor for an importer.
	Delete(ctx context.Context, importerID string) error

	// Acquire takes the run lease on an importer's cursor for owner, or
	// renews it when owner already holds it. A lease held by another owner
	// and renewed after now-ttl yields domain.ErrCursorConflict.
	Acquire(ctx context.Context, importerID, owner string, now time.Time, ttl time.Duration) error

	// Release drops the lease if owner still holds it.
	Release(ctx context.Context, importerID, owner string) error
}
