package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodlens/quotagate/pkg/models"
)

func dailyPolicy(limit int64) models.Policy {
	return models.Policy{
		QuotaType:    models.QuotaTypeScan,
		Tier:         models.TierFree,
		Limit:        limit,
		PeriodLength: 24 * time.Hour,
	}
}

func TestMemoryConsumeSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(3)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		rec, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, rec.Consumed)
		assert.Equal(t, now, rec.PeriodStart)
		assert.Equal(t, now.Add(24*time.Hour), rec.PeriodEnd)
	}

	// Fourth call within the period is denied and mutates nothing.
	rec, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), rec.Consumed)
	assert.Equal(t, now.Add(24*time.Hour), rec.PeriodEnd)
}

func TestMemoryPeriodRollover(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(3)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, start)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Exactly at the boundary the new period applies: rollover at >=.
	boundary := start.Add(24 * time.Hour)
	rec, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, boundary)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), rec.Consumed)
	assert.Equal(t, boundary, rec.PeriodStart)
	assert.Equal(t, boundary.Add(24*time.Hour), rec.PeriodEnd)
}

func TestMemoryConcurrentIncrements(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(50)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)

	rec, err := m.GetOrInit(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Consumed, "consumed must equal the limit, never exceed it")
}

func TestMemoryConcurrentLastUnit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(2)
	now := time.Now()

	_, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Two concurrent calls race for the last unit: exactly one wins.
	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	assert.NotEqual(t, results[0], results[1])

	rec, err := m.GetOrInit(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Consumed)
}

func TestMemoryZeroLimitNeverAllows(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(0)
	now := time.Now()

	for i := 0; i < 3; i++ {
		rec, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(0), rec.Consumed)
	}
}

func TestMemoryNegativeLimitNeverDenies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(-1)
	now := time.Now()

	for i := int64(1); i <= 5; i++ {
		rec, ok, err := m.TryIncrement(ctx, "vip", models.QuotaTypeScan, pol, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, rec.Consumed)
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(1)
	now := time.Now()

	_, ok, err := m.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Different user and different quota type still have budget.
	_, ok, err = m.TryIncrement(ctx, "user-2", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = m.TryIncrement(ctx, "user-1", models.QuotaTypeExport, pol, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGetOrInitDoesNotPersist(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(3)
	now := time.Now()

	rec, err := m.GetOrInit(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Consumed)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryCompact(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pol := dailyPolicy(3)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := m.TryIncrement(ctx, "stale-user", models.QuotaTypeScan, pol, start)
	require.NoError(t, err)
	_, _, err = m.TryIncrement(ctx, "fresh-user", models.QuotaTypeScan, pol, start.Add(40*24*time.Hour))
	require.NoError(t, err)

	removed, err := m.Compact(ctx, start.Add(41*24*time.Hour), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Len())
}
