package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodlens/quotagate/pkg/models"
)

func setupRedisLedger(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	led := NewRedisWithClient(client)
	t.Cleanup(func() { led.Close() })

	return led, mr
}

func TestRedisConsumeSequence(t *testing.T) {
	led, _ := setupRedisLedger(t)
	ctx := context.Background()
	pol := dailyPolicy(3)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		rec, ok, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, rec.Consumed)
		assert.Equal(t, now.UnixMilli(), rec.PeriodStart.UnixMilli())
		assert.Equal(t, now.Add(24*time.Hour).UnixMilli(), rec.PeriodEnd.UnixMilli())
	}

	rec, ok, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), rec.Consumed)
}

func TestRedisDenialDoesNotMutate(t *testing.T) {
	led, mr := setupRedisLedger(t)
	ctx := context.Background()
	pol := dailyPolicy(1)
	now := time.Now()

	_, ok, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	require.True(t, ok)

	before := mr.HGet("quota:user-1:scan", "consumed")

	_, ok, err = led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, mr.HGet("quota:user-1:scan", "consumed"))
}

func TestRedisPeriodRollover(t *testing.T) {
	led, _ := setupRedisLedger(t)
	ctx := context.Background()
	pol := dailyPolicy(2)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		_, ok, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, start)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Rollover triggers at now >= period end.
	boundary := start.Add(24 * time.Hour)
	rec, ok, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, boundary)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), rec.Consumed)
	assert.Equal(t, boundary.UnixMilli(), rec.PeriodStart.UnixMilli())
}

func TestRedisRecordsCarryTTL(t *testing.T) {
	led, mr := setupRedisLedger(t)
	ctx := context.Background()
	pol := dailyPolicy(3)

	_, _, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, time.Now())
	require.NoError(t, err)

	// Keys expire on their own, one period past the end.
	assert.Greater(t, mr.TTL("quota:user-1:scan"), time.Duration(0))
}

func TestRedisConcurrentIncrements(t *testing.T) {
	led, _ := setupRedisLedger(t)
	ctx := context.Background()
	pol := dailyPolicy(20)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, allowed)

	rec, err := led.GetOrInit(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.Consumed)
}

func TestRedisGetOrInitMissingKey(t *testing.T) {
	led, _ := setupRedisLedger(t)
	ctx := context.Background()
	pol := dailyPolicy(3)
	now := time.Now()

	rec, err := led.GetOrInit(ctx, "nobody", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Consumed)
	assert.Equal(t, now.Add(24*time.Hour).Unix(), rec.PeriodEnd.Unix())
}

func TestRedisLaggingClockStillEnforcesLimit(t *testing.T) {
	// The caller's logical clock may trail the Redis server's wall
	// clock (skewed nodes, replayed consumption). The record's TTL is
	// relative to the caller's now, so a lagging clock must not expire
	// the key on write: counts accumulate and the limit binds.
	led, mr := setupRedisLedger(t)
	ctx := context.Background()
	pol := dailyPolicy(2)
	now := time.Now().Add(-72 * time.Hour)

	allowed := 0
	for i := 0; i < 5; i++ {
		_, ok, err := led.TryIncrement(ctx, "user-1", models.QuotaTypeScan, pol, now)
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}

	assert.Equal(t, 2, allowed, "allowed calls must never exceed the limit")
	assert.True(t, mr.Exists("quota:user-1:scan"))

	rec, err := led.GetOrInit(ctx, "user-1", models.QuotaTypeScan, pol, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Consumed)
}

func TestRedisNegativeLimitNeverDenies(t *testing.T) {
	led, _ := setupRedisLedger(t)
	ctx := context.Background()
	pol := models.Policy{
		QuotaType:    models.QuotaTypeScan,
		Tier:         models.TierPremium,
		Limit:        models.Unlimited,
		PeriodLength: 24 * time.Hour,
	}
	now := time.Now()

	for i := int64(1); i <= 5; i++ {
		rec, ok, err := led.TryIncrement(ctx, "vip", models.QuotaTypeScan, pol, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, rec.Consumed)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	led := NewRedisWithClient(client)
	mr.Close()

	_, _, err = led.TryIncrement(context.Background(), "user-1", models.QuotaTypeScan, dailyPolicy(3), time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}
