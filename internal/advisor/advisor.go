package advisor

import "github.com/foodlens/quotagate/pkg/models"

// Advisor maps quota types to the upgrade benefits shown when a request
// is denied. It is read-only after construction; lookups for unknown
// types return an empty list rather than an error since the copy is
// cosmetic.
type Advisor struct {
	benefits map[models.QuotaType][]string
}

// New creates an advisor from configured benefit lists. Quota types not
// present in the overrides fall back to the built-in defaults.
func New(overrides map[models.QuotaType][]string) *Advisor {
	benefits := make(map[models.QuotaType][]string, len(models.KnownQuotaTypes))
	for quotaType, list := range Defaults() {
		benefits[quotaType] = list
	}
	for quotaType, list := range overrides {
		benefits[quotaType] = append([]string(nil), list...)
	}

	return &Advisor{benefits: benefits}
}

// BenefitsFor returns the ordered benefit strings for a quota type, or
// an empty slice when the type is unrecognized.
func (a *Advisor) BenefitsFor(quotaType models.QuotaType) []string {
	list, ok := a.benefits[quotaType]
	if !ok {
		return []string{}
	}

	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Defaults returns the built-in benefit lists.
func Defaults() map[models.QuotaType][]string {
	return map[models.QuotaType][]string{
		models.QuotaTypeScan: {
			"Unlimited food scans",
			"Full ingredient breakdowns",
			"Scan history across devices",
		},
		models.QuotaTypeAIChat: {
			"Unlimited AI nutrition chats",
			"Personalized meal suggestions",
			"Priority responses",
		},
		models.QuotaTypeExport: {
			"Unlimited data exports",
			"CSV and PDF formats",
			"Full scan history included",
		},
	}
}
