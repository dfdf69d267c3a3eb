package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driven"
)

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs []domain.RunSummary
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{}
}

// RecordRun stores a finished run summary.
func (s *RunStore) RecordRun(_ context.Context, summary domain.RunSummary) error {
	if summary.RunID == "" || summary.ImporterID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, summary)
	return nil
}

// ListRuns returns recent runs, most recent first.
func (s *RunStore) ListRuns(_ context.Context, importerID string, limit int) ([]domain.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RunSummary
	for _, r := range s.runs {
		if importerID == "" || r.ImporterID == importerID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneRuns keeps the most recent 'keep' runs per importer.
func (s *RunStore) PruneRuns(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.runs, func(i, j int) bool { return s.runs[i].Started.After(s.runs[j].Started) })
	seen := make(map[string]int)
	kept := s.runs[:0]
	for _, r := range s.runs {
		if seen[r.ImporterID] < keep {
			kept = append(kept, r)
		}
		seen[r.ImporterID]++
	}
	s.runs = kept
	return nil
}
