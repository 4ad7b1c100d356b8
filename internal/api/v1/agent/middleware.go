package agent

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"nabz/internal/api/types"
	"nabz/internal/storage"
)

// serverContextKey is where the authenticated server is stored on the
// request context.
const serverContextKey = "agent_server"

// AuthMiddleware validates agent authentication via Bearer token and
// attaches the owning server to the context.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			types.AbortWithError(c, types.AuthenticationError("missing authorization header"))
			return
		}

		// Expect: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			types.AbortWithError(c, types.AuthenticationError("invalid authorization format"))
			return
		}

		server, err := h.repo.GetServerByToken(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				types.AbortWithError(c, types.AuthenticationError("invalid agent token"))
				return
			}
			types.AbortWithError(c, types.InternalError("failed to validate agent token", err))
			return
		}

		c.Set(serverContextKey, server)
		c.Next()
	}
}

// serverFromContext returns the server attached by AuthMiddleware.
func serverFromContext(c *gin.Context) *storage.Server {
	v, ok := c.Get(serverContextKey)
	if !ok {
		return nil
	}
	server, _ := v.(*storage.Server)
	return server
}
