package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/foodlens/quotagate/pkg/models"
)

// ErrUnavailable means the backing store could not be reached. Callers
// decide whether to fail open or closed; the ledger itself never
// retries, since a retried increment could double-consume.
var ErrUnavailable = errors.New("quota ledger unavailable")

// Ledger is the system of record for per-(user, quota type) consumption
// counters. All mutation funnels through TryIncrement; no other code
// path may read-modify-write a record.
//
// Implementations must make TryIncrement atomic with respect to
// concurrent callers on the same (userID, quotaType) key: two
// simultaneous calls must never both succeed past the limit. Period
// rollover is resolved inside the same atomic step, so a call arriving
// at or after the period end always sees a fresh window.
type Ledger interface {
	// GetOrInit returns the current record for the key, substituting a
	// fresh zero-consumption record when none exists or the stored one
	// has expired. It never writes, so peeking at usage is free of side
	// effects.
	GetOrInit(ctx context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, error)

	// TryIncrement atomically consumes one unit of budget. It returns
	// the post-increment record and true on success, or the unchanged
	// record and false when the limit is already reached. A denial
	// never mutates state.
	//
	// The engine short-circuits unlimited policies before reaching the
	// ledger, but implementations still treat a negative limit as no
	// ceiling rather than as an exhausted budget.
	TryIncrement(ctx context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, bool, error)

	// Close releases any resources held by the ledger.
	Close() error
}

// Compactor is implemented by ledgers that support sweeping records
// whose period ended long ago. Compaction is advisory: rollover is
// resolved lazily on access, so correctness never depends on it.
type Compactor interface {
	// Compact removes records whose period ended before now minus
	// retention and reports how many were removed.
	Compact(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}

// freshRecord returns a zero-consumption record opening a new period at
// now.
func freshRecord(userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) models.Record {
	return models.Record{
		UserID:      userID,
		QuotaType:   quotaType,
		Consumed:    0,
		PeriodStart: now,
		PeriodEnd:   now.Add(pol.PeriodLength),
	}
}
