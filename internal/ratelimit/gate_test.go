package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leader001a/ro-market-crawler-sub000/internal/metrics"
	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
	"github.com/leader001a/ro-market-crawler-sub000/services/cache"
)

func newTestGate(store Store) (*Gate, *time.Time) {
	gate := NewGate(24*time.Hour, store, "test_rate_limited", metrics.NewMetrics())
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }
	return gate, &now
}

func TestGateAllowsWhenIdle(t *testing.T) {
	gate, _ := newTestGate(nil)
	assert.NoError(t, gate.Attempt())
	assert.False(t, gate.Blocked())
}

func TestGateBlocksFor24HoursAfterRateLimit(t *testing.T) {
	gate, now := newTestGate(nil)

	gate.OnResult(perrors.NewRateLimit("fetch", "60"))
	assert.True(t, gate.Blocked())

	err := gate.Attempt()
	require.Error(t, err)
	assert.True(t, perrors.IsRateLimit(err))

	// One second before the 24h mark the lockout still holds
	*now = now.Add(24*time.Hour - time.Second)
	assert.True(t, gate.Blocked())
	assert.Error(t, gate.Attempt())

	// At the 24h mark it self-clears
	*now = now.Add(time.Second)
	assert.False(t, gate.Blocked())
	assert.NoError(t, gate.Attempt())
}

func TestGateRetriggerNeverShortensLockout(t *testing.T) {
	gate, now := newTestGate(nil)

	gate.OnResult(perrors.NewRateLimit("fetch", ""))
	firstUntil := gate.Status().Until

	// A re-trigger 1 hour in extends, never shortens
	*now = now.Add(time.Hour)
	gate.OnResult(perrors.NewRateLimit("fetch", ""))
	secondUntil := gate.Status().Until

	assert.True(t, secondUntil.After(firstUntil))
	assert.Equal(t, 24*time.Hour, secondUntil.Sub(*now))
}

func TestGateClearsOnSuccessfulResponse(t *testing.T) {
	gate, _ := newTestGate(nil)

	gate.OnResult(perrors.NewRateLimit("fetch", ""))
	assert.True(t, gate.Blocked())

	gate.OnResult(nil)
	assert.False(t, gate.Blocked())
	assert.NoError(t, gate.Attempt())
}

func TestGateOrdinaryErrorDoesNotTrigger(t *testing.T) {
	gate, _ := newTestGate(nil)

	gate.OnResult(perrors.NewNetwork("fetch", "connection refused", nil))
	assert.False(t, gate.Blocked())
}

func TestGatePersistsAndRestoresLockout(t *testing.T) {
	store := cache.NewMemoryService()
	gate, _ := newTestGate(store)

	gate.OnResult(perrors.NewRateLimit("fetch", ""))
	require.True(t, gate.Blocked())

	// A fresh gate (simulated restart) must pick the lockout back up
	restarted, _ := newTestGate(store)
	restarted.Restore()
	assert.True(t, restarted.Blocked())

	// Clearing removes the persisted state too
	gate.OnResult(nil)
	again, _ := newTestGate(store)
	again.Restore()
	assert.False(t, again.Blocked())
}

func TestGateNotifiesSubscribers(t *testing.T) {
	gate, _ := newTestGate(nil)

	var mu sync.Mutex
	var statuses []Status
	gate.Subscribe(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s)
	})

	gate.OnResult(perrors.NewRateLimit("fetch", ""))
	gate.OnResult(nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].IsRateLimited)
	assert.Equal(t, 24*60*60, statuses[0].RemainingSeconds)
	assert.False(t, statuses[1].IsRateLimited)
}

func TestGateStatusSnapshot(t *testing.T) {
	gate, now := newTestGate(nil)

	assert.False(t, gate.Status().IsRateLimited)

	gate.OnResult(perrors.NewRateLimit("fetch", ""))
	*now = now.Add(time.Hour)

	status := gate.Status()
	assert.True(t, status.IsRateLimited)
	assert.Equal(t, 23*60*60, status.RemainingSeconds)
}

func TestGateRollingRequestCounter(t *testing.T) {
	gate, now := newTestGate(nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, gate.Attempt())
	}
	assert.Equal(t, 5, gate.RequestRate())

	// Attempts age out of the one-minute window
	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, gate.RequestRate())
}

func TestGateConcurrentAccess(t *testing.T) {
	gate := NewGate(24*time.Hour, nil, "k", metrics.NewMetrics())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = gate.Attempt()
			if i%3 == 0 {
				gate.OnResult(perrors.NewRateLimit("fetch", ""))
			} else {
				gate.OnResult(fmt.Errorf("boom"))
			}
			_ = gate.Blocked()
			_ = gate.RequestRate()
		}(i)
	}
	wg.Wait()

	assert.True(t, gate.Blocked())
}
