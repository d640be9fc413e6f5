package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tokenmeter/tokenmeter/internal/catalog"
	"github.com/tokenmeter/tokenmeter/internal/config"
	"github.com/tokenmeter/tokenmeter/internal/pricing"
	"github.com/tokenmeter/tokenmeter/internal/settings"
	"github.com/tokenmeter/tokenmeter/internal/util"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PricingHandler serves model pricing endpoints.
type PricingHandler struct {
	db         *gorm.DB
	catalog    *catalog.Store
	pricingCfg config.PricingConfig
}

// NewPricingHandler constructs a PricingHandler.
func NewPricingHandler(db *gorm.DB, cat *catalog.Store, pricingCfg config.PricingConfig) *PricingHandler {
	return &PricingHandler{db: db, catalog: cat, pricingCfg: pricingCfg}
}

// List returns all catalog entries.
func (h *PricingHandler) List(c *gin.Context) {
	rows, errList := h.catalog.List(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Error("list model pricing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query pricing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pricing": rows})
}

// upsertPricingRequest defines the request body for pricing updates.
// Absent price fields clear the stored value; the body is the full desired
// state for the model.
type upsertPricingRequest struct {
	ModelID     string   `json:"model_id"`
	AutoPrice   *float64 `json:"auto_price"`
	ManualPrice *float64 `json:"manual_price"`
	Source      string   `json:"source"`
}

// Upsert creates or replaces the pricing entry for a model.
func (h *PricingHandler) Upsert(c *gin.Context) {
	var body upsertPricingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	modelID := strings.TrimSpace(body.ModelID)
	if modelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model_id is required"})
		return
	}
	if (body.AutoPrice != nil && *body.AutoPrice < 0) || (body.ManualPrice != nil && *body.ManualPrice < 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prices must be non-negative"})
		return
	}
	source := strings.TrimSpace(body.Source)
	if source == "" {
		source = "manual"
	}

	row, errUpsert := h.catalog.Upsert(c.Request.Context(), modelID, body.AutoPrice, body.ManualPrice, source)
	if errUpsert != nil {
		log.WithError(errUpsert).Error("upsert model pricing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update pricing failed"})
		return
	}
	log.WithFields(log.Fields{
		"admin_id": getAdminID(c),
		"model":    modelID,
	}).Info("model pricing updated")
	c.JSON(http.StatusOK, gin.H{"success": true, "pricing": row})
}

// Refresh pulls the upstream model list and upserts auto prices for models
// with known rates. Manual prices already stored for a model are carried
// through unchanged.
func (h *PricingHandler) Refresh(c *gin.Context) {
	source := settings.PricingSource{
		BaseURL:        h.pricingCfg.BaseURL,
		APIKey:         h.pricingCfg.APIKey,
		TimeoutSeconds: h.pricingCfg.TimeoutSeconds,
	}
	if override, ok := settings.PricingSourceOverride(); ok {
		if strings.TrimSpace(override.BaseURL) != "" {
			source.BaseURL = override.BaseURL
		}
		if strings.TrimSpace(override.APIKey) != "" {
			source.APIKey = override.APIKey
		}
		if override.TimeoutSeconds > 0 {
			source.TimeoutSeconds = override.TimeoutSeconds
		}
	}

	log.WithFields(log.Fields{
		"base_url": source.BaseURL,
		"api_key":  util.HideAPIKey(source.APIKey),
	}).Info("refreshing model pricing")

	fetcher := pricing.NewFetcher(source.BaseURL, source.APIKey, time.Duration(source.TimeoutSeconds)*time.Second)
	rates, errFetch := fetcher.FetchAutoPrices(c.Request.Context())
	if errFetch != nil {
		log.WithError(errFetch).Warn("auto pricing fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "fetch upstream pricing failed"})
		return
	}

	ctx := c.Request.Context()
	updated := 0
	for modelID, rate := range rates {
		autoPrice := rate.Input

		var manualPrice *float64
		existing, errGet := h.catalog.Get(ctx, modelID)
		switch {
		case errGet == nil:
			manualPrice = existing.ManualPrice
		case errors.Is(errGet, catalog.ErrNotFound):
			// First sighting of this model.
		default:
			log.WithError(errGet).Error("read existing pricing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh pricing failed"})
			return
		}

		if _, errUpsert := h.catalog.Upsert(ctx, modelID, &autoPrice, manualPrice, "api"); errUpsert != nil {
			log.WithError(errUpsert).Error("store auto pricing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh pricing failed"})
			return
		}
		updated++
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

// updateSourceRequest defines the request body for pricing source updates.
type updateSourceRequest struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// UpdateSource stores the upstream pricing source override.
func (h *PricingHandler) UpdateSource(c *gin.Context) {
	var body updateSourceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	source := settings.PricingSource{
		BaseURL:        strings.TrimSpace(body.BaseURL),
		APIKey:         strings.TrimSpace(body.APIKey),
		TimeoutSeconds: body.TimeoutSeconds,
	}
	if errStore := settings.Store(c.Request.Context(), h.db, settings.KeyPricingSource, source); errStore != nil {
		log.WithError(errStore).Error("store pricing source failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store pricing source failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
