package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/foodlens/quotagate/internal/advisor"
	"github.com/foodlens/quotagate/internal/engine"
	"github.com/foodlens/quotagate/internal/ledger"
	"github.com/foodlens/quotagate/internal/logging"
	"github.com/foodlens/quotagate/internal/middleware"
	"github.com/foodlens/quotagate/internal/policy"
	"github.com/foodlens/quotagate/pkg/models"
)

// API holds the handlers for the quota service.
type API struct {
	engine  *engine.Engine
	advisor *advisor.Advisor
	ledger  ledger.Ledger
	log     *logging.Logger
}

// NewAPI creates the API handler set.
func NewAPI(eng *engine.Engine, adv *advisor.Advisor, led ledger.Ledger, log *logging.Logger) *API {
	return &API{
		engine:  eng,
		advisor: adv,
		ledger:  led,
		log:     log,
	}
}

// Health reports process liveness.
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the ledger backend is reachable.
func (a *API) Ready(c *gin.Context) {
	switch l := a.ledger.(type) {
	case *ledger.Redis:
		if err := l.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "ledger unreachable"})
			return
		}
	case *ledger.Postgres:
		if err := l.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "ledger unreachable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ConsumeQuota checks and consumes one unit of budget for the
// authenticated user. Sibling services call this once per billable
// action; calling twice consumes twice.
func (a *API) ConsumeQuota(c *gin.Context) {
	quotaType, ok := parseQuotaType(c)
	if !ok {
		return
	}

	userID, tier := a.identity(c)

	decision, err := a.engine.CheckAndConsume(c.Request.Context(), userID, tier, quotaType, time.Now())
	if err != nil {
		a.respondEngineError(c, err)
		return
	}

	if !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, middleware.DenialResponse(decision, a.advisor.BenefitsFor(quotaType)))
		return
	}

	c.JSON(http.StatusOK, decision)
}

// PeekQuota reports the user's standing for one quota type without
// consuming anything.
func (a *API) PeekQuota(c *gin.Context) {
	quotaType, ok := parseQuotaType(c)
	if !ok {
		return
	}

	userID, tier := a.identity(c)

	decision, err := a.engine.Usage(c.Request.Context(), userID, tier, quotaType, time.Now())
	if err != nil {
		a.respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// Snapshot reports the user's standing across all quota types.
func (a *API) Snapshot(c *gin.Context) {
	userID, tier := a.identity(c)

	decisions, err := a.engine.Snapshot(c.Request.Context(), userID, tier, time.Now())
	if err != nil {
		a.respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"tier":    tier,
		"quotas":  decisions,
	})
}

// Scan accepts a food scan request that passed the admission gate. The
// actual scoring pipeline lives in the scanning service; this endpoint
// acknowledges the admitted request with its remaining budget.
func (a *API) Scan(c *gin.Context) {
	a.admitted(c)
}

// Chat accepts an AI chat request that passed the admission gate.
func (a *API) Chat(c *gin.Context) {
	a.admitted(c)
}

// Export accepts a data export request that passed the admission gate.
func (a *API) Export(c *gin.Context) {
	a.admitted(c)
}

func (a *API) admitted(c *gin.Context) {
	decision, _ := middleware.GetDecision(c)
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"decision": decision,
	})
}

func (a *API) identity(c *gin.Context) (string, models.Tier) {
	userID, _ := middleware.GetUserID(c)
	tier, ok := middleware.GetTier(c)
	if !ok {
		tier = models.TierFree
	}
	return userID, tier
}

func (a *API) respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, policy.ErrPolicyNotFound):
		a.log.WithError(err).Error("quota policy missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Quota configuration error"})
	case errors.Is(err, ledger.ErrUnavailable):
		a.log.WithError(err).Error("quota ledger unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable, please try again"})
	default:
		a.log.WithError(err).Error("quota operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func parseQuotaType(c *gin.Context) (models.QuotaType, bool) {
	quotaType := models.QuotaType(c.Param("type"))
	if !quotaType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown quota type"})
		return "", false
	}
	return quotaType, true
}
