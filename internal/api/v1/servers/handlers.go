// Package servers implements the server management API: inventory, owner
// and webhook settings, recent telemetry reads and the live WebSocket
// stream.
package servers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nabz/internal/api/types"
	"nabz/internal/fanout"
	"nabz/internal/storage"
)

// defaultRecentLimit caps recent metric/log reads when the client does not
// ask for a specific window size.
const defaultRecentLimit = 100

// Handler manages server endpoints.
type Handler struct {
	repo *storage.Repository
	hub  *fanout.Hub
}

// NewHandler initializes a new servers API handler.
func NewHandler(repo *storage.Repository, hub *fanout.Hub) *Handler {
	return &Handler{repo: repo, hub: hub}
}

// ServerResponse is the API view of a server; the ingestion credential is
// never exposed here.
type ServerResponse struct {
	ID         string          `json:"id"`
	Hostname   string          `json:"hostname"`
	Tags       json.RawMessage `json:"tags,omitempty"`
	OwnerEmail *string         `json:"owner_email,omitempty"`
	WebhookURL *string         `json:"webhook_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func toResponse(s *storage.Server) ServerResponse {
	return ServerResponse{
		ID:         s.ID.String(),
		Hostname:   s.Hostname,
		Tags:       json.RawMessage(s.Tags),
		OwnerEmail: s.OwnerEmail,
		WebhookURL: s.WebhookURL,
		CreatedAt:  s.CreatedAt,
	}
}

// List handles GET /servers
func (h *Handler) List(c *gin.Context) {
	servers, err := h.repo.ListServers(c.Request.Context())
	if err != nil {
		types.AbortWithError(c, types.InternalError("failed to list servers", err))
		return
	}

	out := make([]ServerResponse, 0, len(servers))
	for i := range servers {
		out = append(out, toResponse(&servers[i]))
	}
	c.JSON(http.StatusOK, types.SuccessResponse(out))
}

// Get handles GET /servers/:id
func (h *Handler) Get(c *gin.Context) {
	server, ok := h.loadServer(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(toResponse(server)))
}

// UpdateRequest carries the mutable server settings.
type UpdateRequest struct {
	OwnerEmail     *string           `json:"owner_email"`
	WebhookURL     *string           `json:"webhook_url"`
	WebhookHeaders map[string]string `json:"webhook_headers"`
}

// Update handles PATCH /servers/:id
//
// Used to claim a server for an owner and to configure its webhook target.
func (h *Handler) Update(c *gin.Context) {
	server, ok := h.loadServer(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}

	if req.OwnerEmail != nil {
		server.OwnerEmail = req.OwnerEmail
	}
	if req.WebhookURL != nil {
		server.WebhookURL = req.WebhookURL
	}
	if req.WebhookHeaders != nil {
		doc, err := json.Marshal(req.WebhookHeaders)
		if err != nil {
			types.AbortWithError(c, types.ValidationError("invalid webhook headers"))
			return
		}
		server.WebhookHeaders = storage.JSON(doc)
	}

	if err := h.repo.UpdateServer(c.Request.Context(), server); err != nil {
		types.AbortWithError(c, types.InternalError("failed to update server", err))
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(toResponse(server)))
}

// Delete handles DELETE /servers/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.repo.DeleteServer(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			types.AbortWithError(c, types.NotFoundError("server"))
			return
		}
		types.AbortWithError(c, types.InternalError("failed to delete server", err))
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(gin.H{"deleted": true}))
}

// RecentMetrics handles GET /servers/:id/metrics
func (h *Handler) RecentMetrics(c *gin.Context) {
	server, ok := h.loadServer(c)
	if !ok {
		return
	}

	samples, err := h.repo.RecentSamples(c.Request.Context(), server.ID, time.Now().UTC(), defaultRecentLimit)
	if err != nil {
		types.AbortWithError(c, types.InternalError("failed to load metrics", err))
		return
	}

	out := make([]gin.H, 0, len(samples))
	for _, s := range samples {
		out = append(out, gin.H{
			"timestamp": s.Timestamp,
			"payload":   json.RawMessage(s.Payload),
		})
	}
	c.JSON(http.StatusOK, types.SuccessResponse(out))
}

// RecentLogs handles GET /servers/:id/logs
//
// The optional level query parameter restricts the severities returned.
func (h *Handler) RecentLogs(c *gin.Context) {
	server, ok := h.loadServer(c)
	if !ok {
		return
	}

	var levels []string
	if level := c.Query("level"); level != "" {
		if !storage.IsValidLogLevel(level) {
			types.AbortWithError(c, types.ValidationError("unsupported log level"))
			return
		}
		levels = []string{level}
	}

	logs, err := h.repo.RecentLogs(c.Request.Context(), server.ID, time.Now().UTC(), levels, defaultRecentLimit)
	if err != nil {
		types.AbortWithError(c, types.InternalError("failed to load logs", err))
		return
	}

	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"timestamp": l.Timestamp,
			"level":     l.Level,
			"source":    l.Source,
			"message":   l.Message,
		})
	}
	c.JSON(http.StatusOK, types.SuccessResponse(out))
}

// loadServer resolves the :id path parameter to a server, aborting the
// request on failure.
func (h *Handler) loadServer(c *gin.Context) (*storage.Server, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	server, err := h.repo.GetServer(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			types.AbortWithError(c, types.NotFoundError("server"))
			return nil, false
		}
		types.AbortWithError(c, types.InternalError("failed to load server", err))
		return nil, false
	}
	return server, true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		types.AbortWithError(c, types.ValidationError("invalid server ID"))
		return uuid.Nil, false
	}
	return id, true
}
