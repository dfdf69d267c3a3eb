package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

func TestRecordStore_CreateAndFind(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "legislation", "2023-S1", map[string]any{"title": "S1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	found, err := store.FindByIdentity(ctx, "legislation", "2023-S1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, "S1", found.Fields["title"])

	_, err = store.FindByIdentity(ctx, "senator", "2023-S1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordStore_Create_DuplicateIdentity(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "legislation", "k", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "legislation", "k", nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = store.Create(ctx, "calendar", "k", nil)
	assert.NoError(t, err, "identity keys are scoped by bundle")
}

func TestRecordStore_Create_InvalidInput(t *testing.T) {
	store := NewRecordStore()
	_, err := store.Create(context.Background(), "", "k", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = store.Create(context.Background(), "b", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordStore_Update(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	rec, err := store.Create(ctx, "agenda", "2023-3", map[string]any{"title": "old"})
	require.NoError(t, err)

	updated, err := store.Update(ctx, rec.ID, map[string]any{"title": "new", "note": "local"})
	require.NoError(t, err)
	assert.Equal(t, "2023-3", updated.IdentityKey)
	assert.Equal(t, "new", updated.Fields["title"])
	assert.False(t, updated.ChangedAt.Before(rec.ChangedAt))

	_, err = store.Update(ctx, 999, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordStore_FieldsAreCopied(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	fields := map[string]any{"title": "a"}
	rec, err := store.Create(ctx, "agenda", "k", fields)
	require.NoError(t, err)

	fields["title"] = "mutated"
	rec.Fields["title"] = "mutated too"

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Fields["title"])
}

func TestRecordStore_Count(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, err := store.Create(ctx, "senator", k, nil)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "agenda", "a", nil)
	require.NoError(t, err)

	n, err := store.Count(ctx, "senator")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRecordStore_ConcurrentCreate(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, "legislation", "same", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		}
	}
	assert.Equal(t, 1, created)
}
