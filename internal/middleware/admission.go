package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/foodlens/quotagate/internal/ledger"
	"github.com/foodlens/quotagate/internal/logging"
	"github.com/foodlens/quotagate/internal/policy"
	"github.com/foodlens/quotagate/pkg/models"
)

// DecisionContextKey is the gin context key carrying the admission
// decision for handlers running behind the gate.
const DecisionContextKey = "quota_decision"

// QuotaEngine is the engine contract the gate depends on. The call
// consumes budget, so the gate invokes it exactly once per request.
type QuotaEngine interface {
	CheckAndConsume(ctx context.Context, userID string, tier models.Tier, quotaType models.QuotaType, now time.Time) (models.Decision, error)
}

// BenefitSource supplies upgrade benefit strings for denial responses.
type BenefitSource interface {
	BenefitsFor(quotaType models.QuotaType) []string
}

// DecisionSink receives admission decisions after the response has been
// shaped. Implementations must not block.
type DecisionSink interface {
	AdmissionDecided(userID string, decision models.Decision)
}

// Gate is the admission checkpoint: it consults the quota engine before
// letting a request through and shapes the denial response, including
// upgrade messaging, when the budget is exhausted.
type Gate struct {
	engine   QuotaEngine
	advisor  BenefitSource
	sink     DecisionSink
	failOpen bool
	log      *logging.Logger
}

// NewGate creates an admission gate. sink may be nil.
func NewGate(engine QuotaEngine, advisor BenefitSource, sink DecisionSink, failOpen bool, log *logging.Logger) *Gate {
	return &Gate{
		engine:   engine,
		advisor:  advisor,
		sink:     sink,
		failOpen: failOpen,
		log:      log,
	}
}

// Admit returns middleware enforcing the quota for one action type.
// A denied request gets 429 with the limit, reset date and upgrade
// benefits; a granted one proceeds with the decision attached to the
// context and surfaced in X-Quota-* headers.
func (g *Gate) Admit(quotaType models.QuotaType) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		tier, ok := GetTier(c)
		if !ok {
			tier = models.TierFree
		}

		decision, err := g.engine.CheckAndConsume(c.Request.Context(), userID, tier, quotaType, time.Now())
		if err != nil {
			g.handleEngineError(c, quotaType, err)
			return
		}

		if g.sink != nil {
			g.sink.AdmissionDecided(userID, decision)
		}

		if !decision.Allowed {
			c.JSON(http.StatusTooManyRequests, DenialResponse(decision, g.advisor.BenefitsFor(quotaType)))
			c.Abort()
			return
		}

		setQuotaHeaders(c, decision)
		c.Set(DecisionContextKey, decision)
		c.Next()
	}
}

func (g *Gate) handleEngineError(c *gin.Context, quotaType models.QuotaType, err error) {
	switch {
	case errors.Is(err, policy.ErrPolicyNotFound):
		// Configuration defect: surface loudly, never silently grant
		// or deny.
		g.log.WithError(err).WithQuotaType(quotaType).Error("quota policy missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Quota configuration error"})
		c.Abort()

	case errors.Is(err, ledger.ErrUnavailable):
		g.log.WithError(err).WithQuotaType(quotaType).Error("quota ledger unreachable")
		if g.failOpen {
			c.Next()
			return
		}
		// Storage details stay internal; the caller just retries.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable, please try again"})
		c.Abort()

	default:
		g.log.WithError(err).WithQuotaType(quotaType).Error("quota check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		c.Abort()
	}
}

// DenialResponse shapes the 429 payload for an exhausted quota.
func DenialResponse(decision models.Decision, benefits []string) gin.H {
	return gin.H{
		"error":      "Quota exceeded",
		"quota_type": decision.QuotaType,
		"limit":      decision.Limit,
		"remaining":  0,
		"reset_date": decision.ResetDate.UTC().Format(time.RFC3339),
		"benefits":   benefits,
	}
}

// GetDecision retrieves the admission decision stored by the gate.
func GetDecision(c *gin.Context) (models.Decision, bool) {
	v, exists := c.Get(DecisionContextKey)
	if !exists {
		return models.Decision{}, false
	}

	decision, ok := v.(models.Decision)
	return decision, ok
}

func setQuotaHeaders(c *gin.Context, decision models.Decision) {
	if decision.UnlimitedDecision() {
		c.Header("X-Quota-Limit", "unlimited")
		c.Header("X-Quota-Remaining", "unlimited")
		return
	}

	c.Header("X-Quota-Limit", strconv.FormatInt(decision.Limit, 10))
	c.Header("X-Quota-Remaining", strconv.FormatInt(decision.Remaining, 10))
	c.Header("X-Quota-Reset", decision.ResetDate.UTC().Format(time.RFC3339))
}
