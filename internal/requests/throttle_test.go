package requests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

func TestNewThrottle_ZeroPolicyNeverWaits(t *testing.T) {
	th := NewThrottle(domain.ThrottlePolicy{})

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, th.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestThrottle_BurstThenWait(t *testing.T) {
	th := NewThrottle(domain.ThrottlePolicy{Period: 200 * time.Millisecond, Limit: 2})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, th.Wait(ctx))
	require.NoError(t, th.Wait(ctx))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, th.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestThrottle_Defer(t *testing.T) {
	th := NewThrottle(domain.ThrottlePolicy{})

	th.Defer(60 * time.Millisecond)
	paused := th.PausedUntil()
	th.Defer(time.Millisecond)
	assert.Equal(t, paused, th.PausedUntil())

	start := time.Now()
	require.NoError(t, th.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestThrottle_Defer_IgnoresNonPositive(t *testing.T) {
	th := NewThrottle(domain.ThrottlePolicy{})
	th.Defer(0)
	th.Defer(-time.Second)
	assert.True(t, th.PausedUntil().IsZero())
}

func TestThrottle_WaitCancelled(t *testing.T) {
	th := NewThrottle(domain.ThrottlePolicy{})
	th.Defer(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := th.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
