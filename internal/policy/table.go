package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/foodlens/quotagate/pkg/models"
)

// ErrPolicyNotFound means no policy row exists for a (tier, quota type)
// pair. This is a configuration defect: callers should fail loudly
// rather than default to granting or denying.
var ErrPolicyNotFound = errors.New("quota policy not found")

// Table is the immutable quota policy table. It is built once at
// startup and safe for concurrent readers; there is no way to mutate a
// row in place.
type Table struct {
	rows map[key]models.Policy
}

type key struct {
	tier      models.Tier
	quotaType models.QuotaType
}

// New builds a policy table from the given rows. It returns an error on
// duplicate (tier, quota type) pairs, negative limits other than the
// unlimited sentinel, or non-positive period lengths on limited rows.
func New(rows []models.Policy) (*Table, error) {
	t := &Table{rows: make(map[key]models.Policy, len(rows))}

	for _, row := range rows {
		if row.QuotaType == "" || row.Tier == "" {
			return nil, fmt.Errorf("policy row missing tier or quota type: %+v", row)
		}
		if row.Limit < models.Unlimited {
			return nil, fmt.Errorf("policy %s/%s: invalid limit %d", row.Tier, row.QuotaType, row.Limit)
		}
		if !row.Unlimited() && row.PeriodLength <= 0 {
			return nil, fmt.Errorf("policy %s/%s: period length must be positive", row.Tier, row.QuotaType)
		}

		k := key{tier: row.Tier, quotaType: row.QuotaType}
		if _, dup := t.rows[k]; dup {
			return nil, fmt.Errorf("duplicate policy for %s/%s", row.Tier, row.QuotaType)
		}
		t.rows[k] = row
	}

	return t, nil
}

// Resolve returns the policy row for a (tier, quota type) pair.
func (t *Table) Resolve(tier models.Tier, quotaType models.QuotaType) (models.Policy, error) {
	row, ok := t.rows[key{tier: tier, quotaType: quotaType}]
	if !ok {
		return models.Policy{}, fmt.Errorf("%w: tier=%s type=%s", ErrPolicyNotFound, tier, quotaType)
	}
	return row, nil
}

// Len returns the number of policy rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Defaults returns the built-in policy table used when no policies are
// configured: a daily budget for the free tier and unlimited access for
// premium.
func Defaults() []models.Policy {
	day := 24 * time.Hour

	return []models.Policy{
		{QuotaType: models.QuotaTypeScan, Tier: models.TierFree, Limit: 5, PeriodLength: day},
		{QuotaType: models.QuotaTypeAIChat, Tier: models.TierFree, Limit: 3, PeriodLength: day},
		{QuotaType: models.QuotaTypeExport, Tier: models.TierFree, Limit: 1, PeriodLength: day},
		{QuotaType: models.QuotaTypeScan, Tier: models.TierPremium, Limit: models.Unlimited},
		{QuotaType: models.QuotaTypeAIChat, Tier: models.TierPremium, Limit: models.Unlimited},
		{QuotaType: models.QuotaTypeExport, Tier: models.TierPremium, Limit: models.Unlimited},
	}
}
