// Package incidents implements the incident read and resolution API.
package incidents

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nabz/internal/api/types"
	"nabz/internal/incident"
	"nabz/internal/storage"
)

// defaultPageSize is the incident page size when the request names none.
const defaultPageSize = 50

// Handler manages incident endpoints.
type Handler struct {
	repo    *storage.Repository
	manager *incident.Manager
}

// NewHandler initializes a new incidents API handler.
func NewHandler(repo *storage.Repository, manager *incident.Manager) *Handler {
	return &Handler{repo: repo, manager: manager}
}

// List handles GET /incidents?server_id=...&page=...&page_size=...
func (h *Handler) List(c *gin.Context) {
	serverID, err := uuid.Parse(c.Query("server_id"))
	if err != nil {
		types.AbortWithError(c, types.ValidationError("server_id query parameter is required"))
		return
	}

	var page types.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}
	page.Normalize(defaultPageSize)

	incidents, total, err := h.repo.ListIncidents(c.Request.Context(), serverID, page.Offset(), page.PageSize)
	if err != nil {
		types.AbortWithError(c, types.InternalError("failed to list incidents", err))
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponseWithPagination(
		incidents, types.NewPaginationResponse(page.Page, page.PageSize, total)))
}

// Get handles GET /incidents/:id
func (h *Handler) Get(c *gin.Context) {
	inc, ok := h.loadIncident(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(inc))
}

// Resolve handles POST /incidents/:id/resolve
//
// Resolution is idempotent: resolving an already-resolved incident
// succeeds without side effects.
func (h *Handler) Resolve(c *gin.Context) {
	inc, ok := h.loadIncident(c)
	if !ok {
		return
	}

	if err := h.manager.Resolve(c.Request.Context(), inc.ID, time.Now().UTC()); err != nil {
		types.AbortWithError(c, types.InternalError("failed to resolve incident", err))
		return
	}

	resolved, err := h.repo.GetIncident(c.Request.Context(), inc.ID)
	if err != nil {
		types.AbortWithError(c, types.InternalError("failed to reload incident", err))
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(resolved))
}

// loadIncident resolves the :id path parameter, aborting on failure.
func (h *Handler) loadIncident(c *gin.Context) (*storage.Incident, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		types.AbortWithError(c, types.ValidationError("invalid incident ID"))
		return nil, false
	}

	inc, err := h.repo.GetIncident(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			types.AbortWithError(c, types.NotFoundError("incident"))
			return nil, false
		}
		types.AbortWithError(c, types.InternalError("failed to load incident", err))
		return nil, false
	}
	return inc, true
}
