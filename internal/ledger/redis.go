package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foodlens/quotagate/pkg/models"
)

// tryIncrementScript performs rollover and the conditional increment as
// one server-side step, so concurrent callers on the same key are
// linearized by Redis. Timestamps are Unix milliseconds on the caller's
// clock, which may lag or lead server time; the TTL is therefore
// computed relative to the caller's now rather than as an absolute
// server-side deadline. A negative limit means no ceiling.
//
// KEYS[1] record hash
// ARGV[1] now, ARGV[2] limit, ARGV[3] period length ms
// Returns {allowed, consumed, period_start, period_end}.
var tryIncrementScript = redis.NewScript(`
local consumed = tonumber(redis.call('HGET', KEYS[1], 'consumed'))
local start = tonumber(redis.call('HGET', KEYS[1], 'period_start'))
local stop = tonumber(redis.call('HGET', KEYS[1], 'period_end'))
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local period = tonumber(ARGV[3])

if not stop or now >= stop then
	consumed = 0
	start = now
	stop = now + period
end

if limit >= 0 and consumed >= limit then
	return {0, consumed, start, stop}
end

consumed = consumed + 1
redis.call('HSET', KEYS[1], 'consumed', consumed, 'period_start', start, 'period_end', stop)
redis.call('PEXPIRE', KEYS[1], (stop + period) - now)
return {1, consumed, start, stop}
`)

// Redis is a ledger backed by a shared Redis instance. Atomicity comes
// from a Lua script evaluated on the server; records carry a TTL one
// period past their end so idle keys clean themselves up without a
// janitor.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(host string, port int, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client. Used by tests.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func recordRedisKey(userID string, quotaType models.QuotaType) string {
	return fmt.Sprintf("quota:%s:%s", userID, quotaType)
}

// GetOrInit implements Ledger.
func (r *Redis) GetOrInit(ctx context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, error) {
	fields, err := r.client.HGetAll(ctx, recordRedisKey(userID, quotaType)).Result()
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(fields) == 0 {
		return freshRecord(userID, quotaType, pol, now), nil
	}

	rec, err := recordFromHash(userID, quotaType, fields)
	if err != nil {
		return models.Record{}, err
	}

	if rec.Expired(now) {
		return freshRecord(userID, quotaType, pol, now), nil
	}
	return rec, nil
}

// TryIncrement implements Ledger.
func (r *Redis) TryIncrement(ctx context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, bool, error) {
	res, err := tryIncrementScript.Run(ctx, r.client,
		[]string{recordRedisKey(userID, quotaType)},
		now.UnixMilli(), pol.Limit, pol.PeriodLength.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return models.Record{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 4 {
		return models.Record{}, false, fmt.Errorf("%w: unexpected script reply", ErrUnavailable)
	}

	rec := models.Record{
		UserID:      userID,
		QuotaType:   quotaType,
		Consumed:    res[1],
		PeriodStart: time.UnixMilli(res[2]),
		PeriodEnd:   time.UnixMilli(res[3]),
	}

	return rec, res[0] == 1, nil
}

func recordFromHash(userID string, quotaType models.QuotaType, fields map[string]string) (models.Record, error) {
	consumed, err := strconv.ParseInt(fields["consumed"], 10, 64)
	if err != nil {
		return models.Record{}, fmt.Errorf("corrupt quota record for %s/%s: %w", userID, quotaType, err)
	}
	start, err := strconv.ParseInt(fields["period_start"], 10, 64)
	if err != nil {
		return models.Record{}, fmt.Errorf("corrupt quota record for %s/%s: %w", userID, quotaType, err)
	}
	end, err := strconv.ParseInt(fields["period_end"], 10, 64)
	if err != nil {
		return models.Record{}, fmt.Errorf("corrupt quota record for %s/%s: %w", userID, quotaType, err)
	}

	return models.Record{
		UserID:      userID,
		QuotaType:   quotaType,
		Consumed:    consumed,
		PeriodStart: time.UnixMilli(start),
		PeriodEnd:   time.UnixMilli(end),
	}, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Ledger.
func (r *Redis) Close() error {
	return r.client.Close()
}
