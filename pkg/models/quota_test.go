package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordExpiredBoundary(t *testing.T) {
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rec := Record{PeriodEnd: end}

	assert.False(t, rec.Expired(end.Add(-time.Nanosecond)))
	// Rollover triggers at >=, not >.
	assert.True(t, rec.Expired(end))
	assert.True(t, rec.Expired(end.Add(time.Second)))
}

func TestQuotaTypeValid(t *testing.T) {
	assert.True(t, QuotaTypeScan.Valid())
	assert.True(t, QuotaTypeAIChat.Valid())
	assert.True(t, QuotaTypeExport.Valid())
	assert.False(t, QuotaType("teleport").Valid())
}

func TestPolicyUnlimited(t *testing.T) {
	assert.True(t, Policy{Limit: Unlimited}.Unlimited())
	assert.False(t, Policy{Limit: 0}.Unlimited())
	assert.False(t, Policy{Limit: 10}.Unlimited())
}
