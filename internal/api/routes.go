package api

import (
	v1 "nabz/internal/api/v1"

	"github.com/gin-gonic/gin"
)

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Initialize handlers
	baseHandler := NewHandler(s.engine, s.storage)

	// Base api router group
	apiGroup := s.router.Group("/api")

	// Base endpoints (no authentication required)
	apiGroup.GET("/ping", baseHandler.Ping)
	apiGroup.GET("/health", baseHandler.Health)

	// API v1 routes
	v1Group := apiGroup.Group("/v1")
	v1.SetupRoutes(v1Group, s.engine)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})
}
