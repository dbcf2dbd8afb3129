package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/foodlens/quotagate/pkg/models"
)

// Memory is an in-process ledger backed by a map of per-key entries,
// each guarded by its own mutex. Suitable for single-process
// deployments and tests; multi-process deployments should use the Redis
// or Postgres ledger behind the same contract.
type Memory struct {
	mu      sync.RWMutex
	entries map[recordKey]*memoryEntry
}

type recordKey struct {
	userID    string
	quotaType models.QuotaType
}

type memoryEntry struct {
	mu  sync.Mutex
	rec models.Record
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[recordKey]*memoryEntry)}
}

// getEntry returns the entry for a key, creating it if needed.
func (m *Memory) getEntry(userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) *memoryEntry {
	k := recordKey{userID: userID, quotaType: quotaType}

	m.mu.RLock()
	entry, exists := m.entries[k]
	m.mu.RUnlock()

	if exists {
		return entry
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	entry, exists = m.entries[k]
	if exists {
		return entry
	}

	entry = &memoryEntry{rec: freshRecord(userID, quotaType, pol, now)}
	m.entries[k] = entry

	return entry
}

// GetOrInit implements Ledger.
func (m *Memory) GetOrInit(_ context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, error) {
	k := recordKey{userID: userID, quotaType: quotaType}

	m.mu.RLock()
	entry, exists := m.entries[k]
	m.mu.RUnlock()

	if !exists {
		return freshRecord(userID, quotaType, pol, now), nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.rec.Expired(now) {
		return freshRecord(userID, quotaType, pol, now), nil
	}
	return entry.rec, nil
}

// TryIncrement implements Ledger. Rollover and the limit check happen
// under the entry's mutex, so concurrent callers on the same key are
// serialized.
func (m *Memory) TryIncrement(_ context.Context, userID string, quotaType models.QuotaType, pol models.Policy, now time.Time) (models.Record, bool, error) {
	entry := m.getEntry(userID, quotaType, pol, now)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	rec := entry.rec
	if rec.Expired(now) {
		rec = freshRecord(userID, quotaType, pol, now)
	}

	if pol.Limit >= 0 && rec.Consumed >= pol.Limit {
		// Denied: the stored record stays untouched. The caller reads
		// the reset date off the returned (possibly rolled-over) record.
		return rec, false, nil
	}

	rec.Consumed++
	entry.rec = rec

	return rec, true, nil
}

// Compact implements Compactor.
func (m *Memory) Compact(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, entry := range m.entries {
		entry.mu.Lock()
		expired := entry.rec.PeriodEnd.Before(cutoff)
		entry.mu.Unlock()

		if expired {
			delete(m.entries, k)
			removed++
		}
	}

	return removed, nil
}

// Len returns the number of records currently held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Ledger.
func (m *Memory) Close() error {
	return nil
}
