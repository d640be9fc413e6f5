// Package http wires the gin router for the accounting API.
package http

import (
	"github.com/tokenmeter/tokenmeter/internal/catalog"
	"github.com/tokenmeter/tokenmeter/internal/config"
	"github.com/tokenmeter/tokenmeter/internal/http/handlers"
	"github.com/tokenmeter/tokenmeter/internal/ledger"
	"github.com/tokenmeter/tokenmeter/internal/usage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouterDeps carries the constructed services the router exposes.
type RouterDeps struct {
	DB       *gorm.DB
	Catalog  *catalog.Store
	Ledger   *ledger.Ledger
	Recorder *usage.Recorder
	JWT      config.JWTConfig
	Pricing  config.PricingConfig
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	pricingHandler := handlers.NewPricingHandler(deps.DB, deps.Catalog, deps.Pricing)
	usageHandler := handlers.NewUsageHandler(deps.Recorder, deps.Ledger)

	engine.GET("/healthz", healthHandler.Check)

	v0 := engine.Group("/v0")
	v0.POST("/auth/login", authHandler.Login)

	authed := v0.Group("")
	authed.Use(AdminAuthMiddleware(deps.JWT.Secret))
	{
		authed.GET("/models/pricing", pricingHandler.List)
		authed.POST("/models/pricing", pricingHandler.Upsert)
		authed.POST("/models/pricing/refresh", pricingHandler.Refresh)
		authed.POST("/models/pricing/source", pricingHandler.UpdateSource)

		authed.POST("/usage", usageHandler.Record)
		authed.GET("/reports/usage", usageHandler.Report)
		authed.GET("/reports/users/:user_id", usageHandler.UserReport)
		authed.GET("/reports/conversations/:conversation_id", usageHandler.ConversationUsage)
	}

	return engine
}
