package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("openleg.base_url", "https://example.test"))
	require.NoError(t, store.Set("coordinator.workers", 4))
	require.NoError(t, store.Set("scheduler.enabled", true))

	assert.Equal(t, "https://example.test", store.GetString("openleg.base_url"))
	assert.Equal(t, 4, store.GetInt("coordinator.workers"))
	assert.True(t, store.GetBool("scheduler.enabled"))

	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_TypedGettersFallBack(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("retry.max_retries", "five"))
	require.NoError(t, store.Set("log.level", 3))

	assert.Equal(t, 0, store.GetInt("retry.max_retries"))
	assert.Equal(t, "", store.GetString("log.level"))
	assert.False(t, store.GetBool("log.level"))
}

func TestConfigStore_GetInt_NumericKinds(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("a", int64(7)))
	require.NoError(t, store.Set("b", float64(9)))

	assert.Equal(t, 7, store.GetInt("a"))
	assert.Equal(t, 9, store.GetInt("b"))
}

func TestConfigStore_GetStringSlice(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("importers.disabled", []any{"agendas", 3, "calendars"}))

	assert.Equal(t, []string{"agendas", "calendars"}, store.GetStringSlice("importers.disabled"))
	assert.Nil(t, store.GetStringSlice("missing"))
}

func TestConfigStore_Keys(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("importers.bills.session", "2023"))
	require.NoError(t, store.Set("importers.members.chamber", "senate"))
	require.NoError(t, store.Set("importersx.other", "x"))
	require.NoError(t, store.Set("log.level", "debug"))

	assert.Equal(t, []string{
		"importers.bills.session",
		"importers.members.chamber",
	}, store.Keys("importers"))
	assert.Len(t, store.Keys(""), 4)
	assert.Empty(t, store.Keys("retry"))
}

func TestConfigStore_SaveLoadPath(t *testing.T) {
	store := NewConfigStore()
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_WatchNotifiesOnSave(t *testing.T) {
	store := NewConfigStore()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	require.NoError(t, store.Watch(ctx, func(err error) {
		assert.NoError(t, err)
		calls++
	}))
	require.NoError(t, store.Watch(ctx, nil))

	require.NoError(t, store.Set("importers.disabled", []string{"bills"}))
	assert.Zero(t, calls)

	require.NoError(t, store.Save())
	assert.Equal(t, 1, calls)

	cancel()
	assert.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		return len(store.watchers) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, store.Save())
	assert.Equal(t, 1, calls)
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("importers.imp-%d.year", n)
			_ = store.Set(key, n)
			_ = store.GetInt(key)
			_ = store.Keys("importers")
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.Keys("importers"), 20)
}
