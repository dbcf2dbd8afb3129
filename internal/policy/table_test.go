package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodlens/quotagate/pkg/models"
)

func TestTableResolve(t *testing.T) {
	table, err := New([]models.Policy{
		{QuotaType: models.QuotaTypeScan, Tier: models.TierFree, Limit: 5, PeriodLength: 24 * time.Hour},
		{QuotaType: models.QuotaTypeScan, Tier: models.TierPremium, Limit: models.Unlimited},
	})
	require.NoError(t, err)

	pol, err := table.Resolve(models.TierFree, models.QuotaTypeScan)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pol.Limit)
	assert.Equal(t, 24*time.Hour, pol.PeriodLength)

	pol, err = table.Resolve(models.TierPremium, models.QuotaTypeScan)
	require.NoError(t, err)
	assert.True(t, pol.Unlimited())
}

func TestTableResolveMissing(t *testing.T) {
	table, err := New(Defaults())
	require.NoError(t, err)

	_, err = table.Resolve("enterprise", models.QuotaTypeScan)
	assert.ErrorIs(t, err, ErrPolicyNotFound)

	_, err = table.Resolve(models.TierFree, "unknown_action")
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestTableRejectsDuplicates(t *testing.T) {
	_, err := New([]models.Policy{
		{QuotaType: models.QuotaTypeScan, Tier: models.TierFree, Limit: 5, PeriodLength: time.Hour},
		{QuotaType: models.QuotaTypeScan, Tier: models.TierFree, Limit: 10, PeriodLength: time.Hour},
	})
	assert.Error(t, err)
}

func TestTableRejectsInvalidRows(t *testing.T) {
	tests := []struct {
		name string
		row  models.Policy
	}{
		{
			name: "negative limit below sentinel",
			row:  models.Policy{QuotaType: models.QuotaTypeScan, Tier: models.TierFree, Limit: -2, PeriodLength: time.Hour},
		},
		{
			name: "limited row without period",
			row:  models.Policy{QuotaType: models.QuotaTypeScan, Tier: models.TierFree, Limit: 5},
		},
		{
			name: "missing tier",
			row:  models.Policy{QuotaType: models.QuotaTypeScan, Limit: 5, PeriodLength: time.Hour},
		},
		{
			name: "missing quota type",
			row:  models.Policy{Tier: models.TierFree, Limit: 5, PeriodLength: time.Hour},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]models.Policy{tt.row})
			assert.Error(t, err)
		})
	}
}

func TestZeroLimitRowIsValid(t *testing.T) {
	// limit 0 means "never allowed", a legitimate policy.
	table, err := New([]models.Policy{
		{QuotaType: models.QuotaTypeExport, Tier: models.TierFree, Limit: 0, PeriodLength: time.Hour},
	})
	require.NoError(t, err)

	pol, err := table.Resolve(models.TierFree, models.QuotaTypeExport)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pol.Limit)
	assert.False(t, pol.Unlimited())
}

func TestDefaultsAreValid(t *testing.T) {
	table, err := New(Defaults())
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
}
