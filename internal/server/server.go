// Package server exposes the index computation over HTTP. Each request
// pulls a fresh chain snapshot from the configured provider, so results
// track whatever the provider currently serves.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TingdiRen/China-Option-SVIX/internal/engine"
	"github.com/TingdiRen/China-Option-SVIX/internal/logger"
	"github.com/TingdiRen/China-Option-SVIX/internal/market"
	"github.com/TingdiRen/China-Option-SVIX/internal/report"
)

// Handler answers index requests for a fixed set of underlyings.
type Handler struct {
	provider market.Provider
	eng      *engine.Engine
	names    map[string]string // underlying code -> display name
}

// New builds a handler over the given provider and engine. underlyings
// maps the codes the handler serves to their display names; requests for
// any other code are rejected.
func New(provider market.Provider, eng *engine.Engine, underlyings map[string]string) *Handler {
	return &Handler{provider: provider, eng: eng, names: underlyings}
}

// Router returns a gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes binds the handler methods to the route tree.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	api := router.Group("/api/v1")
	{
		api.GET("/svix/:code", h.Compute)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "svix",
		"timestamp": time.Now().Unix(),
	})
}

// Compute fetches the option chain for the requested code, runs the
// engine over it and returns the per-expiry results as JSON.
func (h *Handler) Compute(c *gin.Context) {
	code := c.Param("code")
	name, ok := h.names[code]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown underlying code: " + code})
		return
	}

	rows, err := h.provider.OptionChain(code)
	if err != nil {
		logger.Errorf("option chain %s (%s): %v", code, name, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	results, err := h.eng.Run(rows)
	if err != nil {
		logger.Errorf("svix run %s: %v", code, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Debugf("served %d expiries for %s", len(results), code)

	c.JSON(http.StatusOK, report.Document{
		Meta: report.Meta{
			Underlying:   code,
			CalcDate:     h.eng.CalcDate.Format("2006-01-02"),
			RiskFreeRate: h.eng.RiskFreeRate,
		},
		Results: results,
	})
}
