package driven

import (
	"context"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

// RecordStore is the local content storage collaborator.
// It never deletes records on behalf of an import.
type RecordStore interface {
	// FindByIdentity looks up a record by bundle and identity key.
	// Returns domain.ErrNotFound if no record matches.
	FindByIdentity(ctx context.Context, bundle, identityKey string) (*domain.LocalRecord, error)

	// Get retrieves a record by id.
	Get(ctx context.Context, id int64) (*domain.LocalRecord, error)

	// Create inserts a new record and assigns its id.
	// Returns domain.ErrAlreadyExists if the identity key is taken.
	Create(ctx context.Context, bundle, identityKey string, fields map[string]any) (*domain.LocalRecord, error)

	// Update replaces the fields of an existing record.
	Update(ctx context.Context, id int64, fields map[string]any) (*domain.LocalRecord, error)

	// Count returns the number of records in a bundle.
	Count(ctx context.Context, bundle string) (int, error)
}
