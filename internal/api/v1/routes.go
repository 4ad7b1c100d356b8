package v1

import (
	"nabz/internal/core"

	"nabz/internal/api/v1/agent"
	"nabz/internal/api/v1/incidents"
	"nabz/internal/api/v1/rules"
	"nabz/internal/api/v1/servers"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures API routes.
func SetupRoutes(routerGroup *gin.RouterGroup, engine *core.Engine) {
	// Initialize handlers
	agentHandler := agent.NewHandler(engine.Repo(), engine.Hub(), engine)
	serversHandler := servers.NewHandler(engine.Repo(), engine.Hub())
	rulesHandler := rules.NewHandler(engine.Repo())
	incidentsHandler := incidents.NewHandler(engine.Repo(), engine.Incidents())

	// Agent ingestion endpoints; registration is open, submission requires
	// the server-bound bearer token issued at registration
	agentGroup := routerGroup.Group("/agent")
	{
		agentGroup.POST("/register", agentHandler.Register)
		agentGroup.POST("/metrics", agentHandler.AuthMiddleware(), agentHandler.Metrics)
		agentGroup.POST("/logs", agentHandler.AuthMiddleware(), agentHandler.Logs)
	}

	// Server inventory and telemetry
	serversGroup := routerGroup.Group("/servers")
	{
		serversGroup.GET("", serversHandler.List)
		serversGroup.GET("/:id", serversHandler.Get)
		serversGroup.PATCH("/:id", serversHandler.Update)
		serversGroup.DELETE("/:id", serversHandler.Delete)
		serversGroup.GET("/:id/metrics", serversHandler.RecentMetrics)
		serversGroup.GET("/:id/logs", serversHandler.RecentLogs)
		serversGroup.GET("/:id/live", serversHandler.Live)

		// Alert rule management, scoped to the owning server
		serversGroup.GET("/:id/rules", rulesHandler.List)
		serversGroup.POST("/:id/rules", rulesHandler.Create)
		serversGroup.PATCH("/:id/rules/:rule_id", rulesHandler.Update)
		serversGroup.DELETE("/:id/rules/:rule_id", rulesHandler.Delete)
	}

	// Incident inspection and manual resolution
	incidentsGroup := routerGroup.Group("/incidents")
	{
		incidentsGroup.GET("", incidentsHandler.List)
		incidentsGroup.GET("/:id", incidentsHandler.Get)
		incidentsGroup.POST("/:id/resolve", incidentsHandler.Resolve)
	}
}
