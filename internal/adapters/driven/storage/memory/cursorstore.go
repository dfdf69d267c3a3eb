package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// Ensure CursorStore implements the interface.
var _ driven.CursorStore = (*CursorStore)(nil)

// CursorStore is an in-memory implementation of driven.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.SyncCursor
	leases  map[string]lease
}

type lease struct {
	owner   string
	renewed time.Time
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]domain.SyncCursor),
		leases:  make(map[string]lease),
	}
}

// Save stores or updates a cursor.
func (s *CursorStore) Save(_ context.Context, cursor domain.SyncCursor) error {
	if cursor.ImporterID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[cursor.ImporterID] = cursor
	return nil
}

// Get retrieves the cursor for an importer.
func (s *CursorStore) Get(_ context.Context, importerID string) (*domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[importerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cursor, nil
}

// List returns all cursors ordered by importer id.
func (s *CursorStore) List(_ context.Context) ([]domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SyncCursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImporterID < out[j].ImporterID })
	return out, nil
}

// Delete removes the cursor for an importer.
func (s *CursorStore) Delete(_ context.Context, importerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, importerID)
	return nil
}

// Acquire takes or renews the run lease for owner.
func (s *CursorStore) Acquire(_ context.Context, importerID, owner string, now time.Time, ttl time.Duration) error {
	if importerID == "" || owner == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.leases[importerID]; ok && held.owner != owner && held.renewed.After(now.Add(-ttl)) {
		return domain.ErrCursorConflict
	}
	s.leases[importerID] = lease{owner: owner, renewed: now}
	return nil
}

// Release drops the lease if owner holds it.
func (s *CursorStore) Release(_ context.Context, importerID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.leases[importerID]; ok && held.owner == owner {
		delete(s.leases, importerID)
	}
	return nil
}
