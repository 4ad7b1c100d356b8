// Package agent implements the agent-facing ingestion API: registration,
// metric submission and log submission.
package agent

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nabz/internal/api/types"
	"nabz/internal/fanout"
	"nabz/internal/metrics"
	"nabz/internal/storage"
)

// Evaluator triggers a background rule evaluation pass for one server.
// Ingestion calls it after a metric batch is accepted so violations are
// detected without waiting for the next scheduled sweep.
type Evaluator interface {
	TriggerEvaluation(serverID uuid.UUID)
}

// Handler manages agent endpoints.
type Handler struct {
	repo      *storage.Repository
	hub       *fanout.Hub
	evaluator Evaluator
}

// NewHandler initializes a new agent API handler.
func NewHandler(repo *storage.Repository, hub *fanout.Hub, evaluator Evaluator) *Handler {
	return &Handler{repo: repo, hub: hub, evaluator: evaluator}
}

// Register handles POST /agent/register
//
// Registration is idempotent on the agent fingerprint: re-registering an
// existing agent returns the original identity and credential unchanged.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}

	server := &storage.Server{
		Fingerprint: req.Fingerprint,
		Pubkey:      req.Pubkey,
		Hostname:    req.Hostname,
		Tags:        storage.JSON(req.Tags),
	}
	if err := storage.ValidateServer(server); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}

	registered, err := h.repo.RegisterServer(c.Request.Context(), server)
	if err != nil {
		types.AbortWithError(c, types.InternalError("failed to register server", err))
		return
	}

	c.JSON(http.StatusOK, types.SuccessResponse(RegisterResponse{
		ServerID:  registered.ID.String(),
		AuthToken: registered.AuthToken,
	}))
}

// Metrics handles POST /agent/metrics
//
// The batch is stored atomically, then every accepted sample is published
// to live subscribers. Samples with invalid payload documents reject the
// whole batch so the agent can fix and resend it.
func (h *Handler) Metrics(c *gin.Context) {
	server := serverFromContext(c)
	if server == nil {
		types.AbortWithError(c, types.AuthenticationError("missing agent identity"))
		return
	}

	var req MetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}

	now := time.Now().UTC()
	samples := make([]*storage.MetricSample, 0, len(req.Samples))
	for _, s := range req.Samples {
		if _, err := metrics.Decode(s.Payload); err != nil {
			types.AbortWithError(c, types.ValidationError("malformed metric payload"))
			return
		}
		ts := s.Timestamp
		if ts.IsZero() {
			ts = now
		}
		samples = append(samples, &storage.MetricSample{
			ServerID:  server.ID,
			Timestamp: ts,
			Payload:   storage.JSON(s.Payload),
			Meta:      storage.JSON(s.Meta),
		})
	}

	if err := h.repo.AppendSamples(c.Request.Context(), samples); err != nil {
		types.AbortWithError(c, types.InternalError("failed to store metrics", err))
		return
	}

	for _, sample := range samples {
		h.hub.Publish(fanout.Event{
			Type:     "metrics",
			ServerID: server.ID,
			Data: gin.H{
				"timestamp": sample.Timestamp,
				"payload":   sample.Payload,
			},
		})
	}

	if h.evaluator != nil {
		h.evaluator.TriggerEvaluation(server.ID)
	}

	c.JSON(http.StatusOK, types.SuccessResponse(gin.H{
		"accepted": len(samples),
	}))
}

// Logs handles POST /agent/logs
func (h *Handler) Logs(c *gin.Context) {
	server := serverFromContext(c)
	if server == nil {
		types.AbortWithError(c, types.AuthenticationError("missing agent identity"))
		return
	}

	var req LogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		types.AbortWithError(c, types.ValidationError(err.Error()))
		return
	}

	now := time.Now().UTC()
	entries := make([]*storage.LogEntry, 0, len(req.Logs))
	for _, l := range req.Logs {
		ts := l.Timestamp
		if ts.IsZero() {
			ts = now
		}
		entry := &storage.LogEntry{
			ServerID:  server.ID,
			Timestamp: ts,
			Level:     l.Level,
			Source:    l.Source,
			EventID:   l.EventID,
			Message:   l.Message,
			Meta:      storage.JSON(l.Meta),
		}
		if err := storage.ValidateLogEntry(entry); err != nil {
			types.AbortWithError(c, types.ValidationError(err.Error()))
			return
		}
		entries = append(entries, entry)
	}

	if err := h.repo.AppendLogs(c.Request.Context(), entries); err != nil {
		types.AbortWithError(c, types.InternalError("failed to store logs", err))
		return
	}

	for _, entry := range entries {
		h.hub.Publish(fanout.Event{
			Type:     "logs",
			ServerID: server.ID,
			Data: gin.H{
				"timestamp": entry.Timestamp,
				"level":     entry.Level,
				"source":    entry.Source,
				"event_id":  entry.EventID,
				"message":   entry.Message,
			},
		})
	}

	c.JSON(http.StatusOK, types.SuccessResponse(gin.H{
		"accepted": len(entries),
	}))
}
