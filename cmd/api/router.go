package main

import (
	"github.com/gin-gonic/gin"

	"github.com/foodlens/quotagate/internal/config"
	"github.com/foodlens/quotagate/internal/logging"
	"github.com/foodlens/quotagate/internal/middleware"
	"github.com/foodlens/quotagate/pkg/models"
)

func setupRouter(api *API, gate *middleware.Gate, cfg *config.Config, log *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))

	rl := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	router.Use(middleware.RateLimit(rl))

	router.GET("/health", api.Health)
	router.GET("/ready", api.Ready)

	v1 := router.Group("/v1")
	v1.Use(middleware.JWTAuth())
	{
		// Quota API consumed by sibling services acting as their own
		// admission gates.
		v1.GET("/quota", api.Snapshot)
		v1.GET("/quota/:type", api.PeekQuota)
		v1.POST("/quota/:type/consume", api.ConsumeQuota)

		// Actions gated in-process by the admission middleware.
		v1.POST("/scan", gate.Admit(models.QuotaTypeScan), api.Scan)
		v1.POST("/chat", gate.Admit(models.QuotaTypeAIChat), api.Chat)
		v1.POST("/export", gate.Admit(models.QuotaTypeExport), api.Export)
	}

	return router
}
