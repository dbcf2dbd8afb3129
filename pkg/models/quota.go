package models

import "time"

// Unlimited is the sentinel limit meaning a tier has no ceiling for a
// quota type. A limit of 0 means the action is never allowed.
const Unlimited = -1

// QuotaType identifies a category of rate-limited action.
type QuotaType string

const (
	QuotaTypeScan   QuotaType = "scan"
	QuotaTypeAIChat QuotaType = "ai_chat"
	QuotaTypeExport QuotaType = "export"
)

// KnownQuotaTypes lists the quota types the service ships with.
// Additional types may be introduced through configuration.
var KnownQuotaTypes = []QuotaType{QuotaTypeScan, QuotaTypeAIChat, QuotaTypeExport}

// Valid reports whether the quota type is one of the built-in types.
func (qt QuotaType) Valid() bool {
	for _, known := range KnownQuotaTypes {
		if qt == known {
			return true
		}
	}
	return false
}

// Tier is a subscription level determining which policy row applies.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Policy is one row of the quota policy table: the budget a tier gets
// for a quota type and the window over which it accumulates.
type Policy struct {
	QuotaType    QuotaType     `json:"quota_type"`
	Tier         Tier          `json:"tier"`
	Limit        int64         `json:"limit"`
	PeriodLength time.Duration `json:"period_length"`
}

// Unlimited reports whether this policy carries the unlimited sentinel.
func (p Policy) Unlimited() bool {
	return p.Limit == Unlimited
}

// Record is the per-(user, quota type) consumption state for the
// current period. The ledger is its only writer.
type Record struct {
	UserID      string    `json:"user_id"`
	QuotaType   QuotaType `json:"quota_type"`
	Consumed    int64     `json:"consumed"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Expired reports whether the record's period has ended. Rollover
// triggers at now >= PeriodEnd, so a request arriving exactly on the
// boundary sees a fresh period.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.PeriodEnd)
}

// Decision is the engine's verdict for a single consumption attempt.
// It is a value passed up to the admission gate, never persisted.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	QuotaType QuotaType `json:"quota_type"`
	Tier      Tier      `json:"tier"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetDate time.Time `json:"reset_date,omitempty"`
}

// UnlimitedDecision reports whether the decision came from an unlimited
// policy, in which case Remaining carries the sentinel and ResetDate is
// zero.
func (d Decision) UnlimitedDecision() bool {
	return d.Limit == Unlimited
}
