package engine

import (
	"context"
	"errors"
	"time"

	"github.com/foodlens/quotagate/internal/ledger"
	"github.com/foodlens/quotagate/internal/logging"
	"github.com/foodlens/quotagate/internal/metrics"
	"github.com/foodlens/quotagate/internal/policy"
	"github.com/foodlens/quotagate/internal/tracing"
	"github.com/foodlens/quotagate/pkg/models"
)

// Engine enforces quota policies against the ledger and produces
// admission decisions. It is safe for concurrent use; per-key ordering
// comes from the ledger's atomic increment.
//
// CheckAndConsume is deliberately not idempotent: calling it twice for
// the same logical action consumes two units. Callers must invoke it
// exactly once per billable action. A committed increment is never
// rolled back, even if the caller abandoned the request; reversing it
// would race a concurrent rollover.
type Engine struct {
	policies *policy.Table
	ledger   ledger.Ledger
	store    string
	log      *logging.Logger
}

// New creates an engine over the given policy table and ledger. The
// store name labels metrics and logs (memory, redis, postgres).
func New(policies *policy.Table, l ledger.Ledger, store string, log *logging.Logger) *Engine {
	return &Engine{
		policies: policies,
		ledger:   l,
		store:    store,
		log:      log,
	}
}

// CheckAndConsume atomically checks whether the user still has budget
// for the quota type and consumes one unit if so.
//
// It fails only when policy resolution fails (policy.ErrPolicyNotFound,
// a configuration defect) or the ledger is unreachable
// (ledger.ErrUnavailable). Quota exhaustion is not an error: it comes
// back as Allowed=false with the period's reset date filled in.
//
// At most one increment attempt is made per call; the engine never
// retries internally, since a retried increment could double-consume.
func (e *Engine) CheckAndConsume(ctx context.Context, userID string, tier models.Tier, quotaType models.QuotaType, now time.Time) (models.Decision, error) {
	span, ctx := tracing.StartSpan(ctx, "engine.CheckAndConsume")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "quota.type", string(quotaType))
	tracing.SetTag(span, "quota.tier", string(tier))

	pol, err := e.policies.Resolve(tier, quotaType)
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordAdmission(string(quotaType), string(tier), "error")
		return models.Decision{}, err
	}

	// Unlimited tiers never touch the ledger, so heavy premium traffic
	// costs no writes.
	if pol.Unlimited() {
		decision := models.Decision{
			Allowed:   true,
			QuotaType: quotaType,
			Tier:      tier,
			Limit:     models.Unlimited,
			Remaining: models.Unlimited,
		}
		metrics.RecordAdmission(string(quotaType), string(tier), "allowed")
		return decision, nil
	}

	start := time.Now()
	rec, ok, err := e.ledger.TryIncrement(ctx, userID, quotaType, pol, now)
	metrics.RecordLedgerOperation(e.store, "try_increment", status(err), time.Since(start).Seconds())
	e.log.LogLedgerOperation(e.store, "try_increment", time.Since(start), err)

	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordAdmission(string(quotaType), string(tier), "error")
		return models.Decision{}, err
	}

	decision := models.Decision{
		QuotaType: quotaType,
		Tier:      tier,
		Limit:     pol.Limit,
		ResetDate: rec.PeriodEnd,
	}

	if ok {
		decision.Allowed = true
		decision.Remaining = pol.Limit - rec.Consumed
		metrics.RecordAdmission(string(quotaType), string(tier), "allowed")
	} else {
		decision.Allowed = false
		decision.Remaining = 0
		metrics.RecordAdmission(string(quotaType), string(tier), "denied")
		metrics.RecordDenial(string(quotaType), string(tier))
	}

	e.log.LogQuotaDecision(userID, decision)

	return decision, nil
}

// Usage reports the user's current standing for a quota type without
// consuming anything.
func (e *Engine) Usage(ctx context.Context, userID string, tier models.Tier, quotaType models.QuotaType, now time.Time) (models.Decision, error) {
	pol, err := e.policies.Resolve(tier, quotaType)
	if err != nil {
		return models.Decision{}, err
	}

	if pol.Unlimited() {
		return models.Decision{
			Allowed:   true,
			QuotaType: quotaType,
			Tier:      tier,
			Limit:     models.Unlimited,
			Remaining: models.Unlimited,
		}, nil
	}

	start := time.Now()
	rec, err := e.ledger.GetOrInit(ctx, userID, quotaType, pol, now)
	metrics.RecordLedgerOperation(e.store, "get_or_init", status(err), time.Since(start).Seconds())
	if err != nil {
		return models.Decision{}, err
	}

	remaining := pol.Limit - rec.Consumed
	if remaining < 0 {
		remaining = 0
	}

	return models.Decision{
		Allowed:   remaining > 0,
		QuotaType: quotaType,
		Tier:      tier,
		Limit:     pol.Limit,
		Remaining: remaining,
		ResetDate: rec.PeriodEnd,
	}, nil
}

// Snapshot reports usage across all built-in quota types. Types without
// a policy row for the tier are skipped; a genuinely unreachable ledger
// still surfaces as an error.
func (e *Engine) Snapshot(ctx context.Context, userID string, tier models.Tier, now time.Time) ([]models.Decision, error) {
	decisions := make([]models.Decision, 0, len(models.KnownQuotaTypes))

	for _, quotaType := range models.KnownQuotaTypes {
		d, err := e.Usage(ctx, userID, tier, quotaType, now)
		if errors.Is(err, policy.ErrPolicyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}

	return decisions, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
