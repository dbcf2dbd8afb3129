package ledger

import (
	"context"
	"time"

	"github.com/foodlens/quotagate/internal/logging"
)

// Janitor periodically compacts expired records from a ledger that
// supports it. The sweep is advisory housekeeping: admission
// correctness relies on lazy rollover, not on the janitor.
type Janitor struct {
	compactor Compactor
	interval  time.Duration
	retention time.Duration
	log       *logging.Logger
}

// NewJanitor creates a janitor. Returns nil when the ledger does not
// implement Compactor (the Redis ledger relies on key TTLs instead).
func NewJanitor(l Ledger, interval, retention time.Duration, log *logging.Logger) *Janitor {
	compactor, ok := l.(Compactor)
	if !ok || interval <= 0 {
		return nil
	}

	return &Janitor{
		compactor: compactor,
		interval:  interval,
		retention: retention,
		log:       log,
	}
}

// Run sweeps on a ticker until the context is cancelled. Call it in its
// own goroutine.
func (j *Janitor) Run(ctx context.Context) {
	if j == nil {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.compactor.Compact(ctx, time.Now(), j.retention)
			if err != nil {
				j.log.WithError(err).Warn("quota record compaction failed")
				continue
			}
			if removed > 0 {
				j.log.WithField("removed", removed).Debug("compacted expired quota records")
			}
		}
	}
}
