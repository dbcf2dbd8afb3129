package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foodlens/quotagate/pkg/models"
)

// Postgres is a ledger backed by a relational table with one row per
// (user, quota type). Atomicity comes from a single conditional
// INSERT ... ON CONFLICT DO UPDATE statement: the row is rolled over
// and incremented in one statement, or left untouched when the limit is
// reached.
type Postgres struct {
	pool *pgxpool.Pool
}

const quotaRecordsSchema = `
CREATE TABLE IF NOT EXISTS quota_records (
	user_id      TEXT        NOT NULL,
	quota_type   TEXT        NOT NULL,
	consumed     BIGINT      NOT NULL DEFAULT 0,
	period_start TIMESTAMPTZ NOT NULL,
	period_end   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, quota_type)
)`

// NewPostgres connects to Postgres, verifies the connection, and makes
// sure the quota_records table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, quotaRecordsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure quota_records table: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// GetOrInit implements Ledger.
func (p *Postgres) GetOrInit(ctx context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, error) {
	query := `
		SELECT consumed, period_start, period_end
		FROM quota_records
		WHERE user_id = $1 AND quota_type = $2
	`

	rec := models.Record{UserID: userID, QuotaType: quotaType}
	err := p.pool.QueryRow(ctx, query, userID, string(quotaType)).
		Scan(&rec.Consumed, &rec.PeriodStart, &rec.PeriodEnd)

	if errors.Is(err, pgx.ErrNoRows) {
		return freshRecord(userID, quotaType, pol, now), nil
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if rec.Expired(now) {
		return freshRecord(userID, quotaType, pol, now), nil
	}
	return rec, nil
}

// TryIncrement implements Ledger. The WHERE clause on the conflict
// update makes the limit check and the increment one atomic statement:
// either the row rolls over (period_end <= now) or it still has budget,
// otherwise no row comes back and nothing was written.
func (p *Postgres) TryIncrement(ctx context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, bool, error) {
	if pol.Limit == 0 {
		rec, err := p.GetOrInit(ctx, userID, quotaType, pol, now)
		if err != nil {
			return models.Record{}, false, err
		}
		return rec, false, nil
	}

	query := `
		INSERT INTO quota_records (user_id, quota_type, consumed, period_start, period_end)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (user_id, quota_type) DO UPDATE SET
			consumed     = CASE WHEN quota_records.period_end <= $3 THEN 1 ELSE quota_records.consumed + 1 END,
			period_start = CASE WHEN quota_records.period_end <= $3 THEN $3 ELSE quota_records.period_start END,
			period_end   = CASE WHEN quota_records.period_end <= $3 THEN $4 ELSE quota_records.period_end END
		WHERE quota_records.period_end <= $3 OR quota_records.consumed < $5
		RETURNING consumed, period_start, period_end
	`

	rec := models.Record{UserID: userID, QuotaType: quotaType}
	err := p.pool.QueryRow(ctx, query,
		userID, string(quotaType), now, now.Add(pol.PeriodLength), pol.Limit,
	).Scan(&rec.Consumed, &rec.PeriodStart, &rec.PeriodEnd)

	if errors.Is(err, pgx.ErrNoRows) {
		// Limit reached: read the untouched row for its reset date.
		rec, err := p.GetOrInit(ctx, userID, quotaType, pol, now)
		if err != nil {
			return models.Record{}, false, err
		}
		return rec, false, nil
	}
	if err != nil {
		return models.Record{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return rec, true, nil
}

// Compact implements Compactor.
func (p *Postgres) Compact(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM quota_records WHERE period_end < $1`,
		now.Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements Ledger.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
