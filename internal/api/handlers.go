// Package api provides public endpoints for system health and connectivity.
//
// These endpoints are designed to be lightweight, fast, and reliable for external monitoring
// systems (e.g., load balancers, uptime monitors, observability tools).
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nabz/internal/core"
	"nabz/internal/storage"
)

// Handler manages public endpoints.
type Handler struct {
	engine    *core.Engine
	storage   *storage.Storage
	startTime time.Time
}

// NewHandler initializes a new public API handler.
func NewHandler(engine *core.Engine, storage *storage.Storage) *Handler {
	return &Handler{
		engine:    engine,
		storage:   storage,
		startTime: time.Now(),
	}
}

// Ping handles GET /ping
//
// A lightweight endpoint for basic connectivity verification.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Health handles GET /health
//
// Aggregates the health of the database and the engine. Overall status is
// "healthy" only if all components report healthy, otherwise "degraded".
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	status := "healthy"
	components := gin.H{}

	dbStatus := "healthy"
	var dbLatency time.Duration
	if sqlDB, err := h.storage.DB().DB(); err != nil {
		dbStatus = "unhealthy"
		status = "degraded"
	} else {
		start := time.Now()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
			status = "degraded"
		}
		dbLatency = time.Since(start)
	}
	components["database"] = gin.H{
		"status":     dbStatus,
		"latency_ms": dbLatency.Milliseconds(),
	}

	engineStatus := "healthy"
	if !h.engine.IsRunning() {
		engineStatus = "stopped"
		status = "degraded"
	}
	components["engine"] = gin.H{
		"status": engineStatus,
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"components":     components,
	})
}
