// Package rules implements the alert rule management API.
package rules

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nabz/internal/api/types"
	"nabz/internal/storage"
)

// Handler manages alert rule endpoints.
type Handler struct {
	repo *storage.Repository
}

// NewHandler initializes a new rules API handler.
func NewHandler(repo *storage.Repository) *Handler {
	return &Handler{repo: repo}
}

// CreateRequest is the rule creation payload.
type CreateRequest struct {
	Name            string  `json:"name" binding:"required"`
	Metric          string  `json:"metric" binding:"required"`
	Kind            string  `json:"kind" binding:"required"`
	Operator        string  `json:"operator"`
	Threshold       float64 `json:"threshold"`
	DurationMinutes int     `json:"duration_minutes"`
	Enabled         *bool   `json:"enabled"`
}

// UpdateRequest is the rule update payload; nil fields stay unchanged.
type UpdateRequest struct {
	Name            *string  `json:"name"`
	Operator        *string  `json:"operator"`
	Threshold       *float64 `json:"threshold"`
	DurationMinutes *int     `json:"duration_minutes"`
	Enabled         *bool    `json:"enabled"`
}

// List handles GET /servers/:id/rules
func (h *Handler) List(c *gin.Context) {
	serverID, ok := parseServerID(c)
	if !ok {
		return
	}
	rules, err := h.repo.ListRules(c.Request.Context(), serverID)
	if err != nil {
		types.AbortWithError(c, types.InternalError("failed to list rules", err))
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(rules))
}

// Create handles POST /servers/:id/rules
func (h *Handler) Create(c *gin.Context) {
	serverID, ok := parseServerID(c)
	if !ok {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule := &storage.AlertRule{
		ServerID:        serverID,
		Name:            req.Name,
		Metric:          req.Metric,
		Kind:            req.Kind,
		Operator:        req.Operator,
		Threshold:       req.Threshold,
		DurationMinutes: req.DurationMinutes,
		Enabled:         enabled,
	}

	if err := h.repo.CreateRule(c.Request.Context(), rule); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			types.AbortWithError(c, types.ConflictError(err.Error()))
			return
		}
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, types.SuccessResponse(rule))
}

// Update handles PATCH /servers/:id/rules/:rule_id
func (h *Handler) Update(c *gin.Context) {
	rule, ok := h.loadRule(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Operator != nil {
		rule.Operator = *req.Operator
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.DurationMinutes != nil {
		rule.DurationMinutes = *req.DurationMinutes
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := h.repo.UpdateRule(c.Request.Context(), rule); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(rule))
}

// Delete handles DELETE /servers/:id/rules/:rule_id
func (h *Handler) Delete(c *gin.Context) {
	rule, ok := h.loadRule(c)
	if !ok {
		return
	}
	if err := h.repo.DeleteRule(c.Request.Context(), rule.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			types.AbortWithError(c, types.NotFoundError("rule"))
			return
		}
		types.AbortWithError(c, types.InternalError("failed to delete rule", err))
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse(gin.H{"deleted": true}))
}

// loadRule resolves :rule_id within the server scope, aborting on failure.
func (h *Handler) loadRule(c *gin.Context) (*storage.AlertRule, bool) {
	serverID, ok := parseServerID(c)
	if !ok {
		return nil, false
	}

	ruleID, err := strconv.ParseInt(c.Param("rule_id"), 10, 64)
	if err != nil {
		types.AbortWithError(c, types.ValidationError("invalid rule ID"))
		return nil, false
	}

	rule, err := h.repo.GetRule(c.Request.Context(), ruleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			types.AbortWithError(c, types.NotFoundError("rule"))
			return nil, false
		}
		types.AbortWithError(c, types.InternalError("failed to load rule", err))
		return nil, false
	}
	if rule.ServerID != serverID {
		types.AbortWithError(c, types.NotFoundError("rule"))
		return nil, false
	}
	return rule, true
}

func parseServerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		types.AbortWithError(c, types.ValidationError("invalid server ID"))
		return uuid.Nil, false
	}
	return id, true
}
