package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

type identity struct {
	bundle string
	key    string
}

// RecordStore is an in-memory implementation of driven.RecordStore.
// Records are copied on the way in and out.
type RecordStore struct {
	mu         sync.RWMutex
	nextID     int64
	records    map[int64]domain.LocalRecord
	identities map[identity]int64
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		nextID:     1,
		records:    make(map[int64]domain.LocalRecord),
		identities: make(map[identity]int64),
	}
}

func copyRecord(r domain.LocalRecord) *domain.LocalRecord {
	r.Fields = r.CloneFields()
	return &r
}

// FindByIdentity looks up a record by bundle and identity key.
func (s *RecordStore) FindByIdentity(_ context.Context, bundle, identityKey string) (*domain.LocalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[identity{bundle, identityKey}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecord(s.records[id]), nil
}

// Get retrieves a record by id.
func (s *RecordStore) Get(_ context.Context, id int64) (*domain.LocalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Create inserts a new record and assigns its id.
func (s *RecordStore) Create(_ context.Context, bundle, identityKey string, fields map[string]any) (*domain.LocalRecord, error) {
	if bundle == "" || identityKey == "" {
		return nil, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idt := identity{bundle, identityKey}
	if _, ok := s.identities[idt]; ok {
		return nil, domain.ErrAlreadyExists
	}
	now := time.Now().UTC()
	rec := domain.LocalRecord{
		ID:          s.nextID,
		Bundle:      bundle,
		IdentityKey: identityKey,
		Fields:      fields,
		CreatedAt:   now,
		ChangedAt:   now,
	}
	rec.Fields = rec.CloneFields()
	s.nextID++
	s.records[rec.ID] = rec
	s.identities[idt] = rec.ID
	return copyRecord(rec), nil
}

// Update replaces the fields of an existing record.
func (s *RecordStore) Update(_ context.Context, id int64, fields map[string]any) (*domain.LocalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec.Fields = fields
	rec.Fields = rec.CloneFields()
	rec.ChangedAt = time.Now().UTC()
	s.records[id] = rec
	return copyRecord(rec), nil
}

// Count returns the number of records in a bundle.
func (s *RecordStore) Count(_ context.Context, bundle string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for idt := range s.identities {
		if idt.bundle == bundle {
			n++
		}
	}
	return n, nil
}
