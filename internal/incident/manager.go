// Package incident drives the incident lifecycle: creation on rule
// violation, enrichment by background analysis, and resolution.
//
// The lifecycle is investigating -> active -> resolved, with resolution
// terminal and reachable from either prior state. Uniqueness of the open
// incident per rule and the legality of every transition are enforced by
// the storage layer's conditional writes, so this package stays safe under
// concurrent evaluation without holding locks across calls.
package incident

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nabz/internal/fanout"
	"nabz/internal/notify"
	"nabz/internal/storage"
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreateIncidentIfAbsent(ctx context.Context, serverID uuid.UUID, ruleID int64, triggeredAt time.Time) (*storage.Incident, bool, error)
	OpenIncident(ctx context.Context, ruleID int64) (*storage.Incident, error)
	GetIncident(ctx context.Context, id uuid.UUID) (*storage.Incident, error)
	ResolveIncident(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	GetServer(ctx context.Context, id uuid.UUID) (*storage.Server, error)
	GetRule(ctx context.Context, id int64) (*storage.AlertRule, error)
}

// Sender dispatches lifecycle notifications.
type Sender interface {
	Send(ctx context.Context, event notify.Event)
}

// Analyzer accepts incidents for background correlation and summarization.
type Analyzer interface {
	// EnqueueIncident schedules analysis; false means the queue was full
	// and the incident proceeds without enrichment.
	EnqueueIncident(incidentID uuid.UUID, condition string) bool
}

// Manager coordinates incident transitions with notification and fan-out
// side effects. Exactly one notification is sent per transition: only the
// caller whose conditional write took effect performs the side effects.
type Manager struct {
	store    Store
	notifier Sender
	hub      *fanout.Hub
	analyzer Analyzer
}

// NewManager creates an incident manager. analyzer may be nil, in which
// case incidents are created without background enrichment.
func NewManager(store Store, notifier Sender, hub *fanout.Hub, analyzer Analyzer) *Manager {
	return &Manager{store: store, notifier: notifier, hub: hub, analyzer: analyzer}
}

// SetAnalyzer wires the analysis pool after construction; the pool itself
// resolves incidents through this manager, so the two reference each other.
func (m *Manager) SetAnalyzer(analyzer Analyzer) {
	m.analyzer = analyzer
}

// HandleViolation records a rule violation. If no incident is open for the
// rule a new one enters investigating, the fired notification goes out and
// analysis is queued; if one is already open the violation is absorbed
// silently.
func (m *Manager) HandleViolation(ctx context.Context, rule storage.AlertRule, condition string, at time.Time) (*storage.Incident, error) {
	inc, created, err := m.store.CreateIncidentIfAbsent(ctx, rule.ServerID, rule.ID, at)
	if err != nil {
		return nil, err
	}
	if !created {
		return inc, nil
	}

	log.Info().
		Str("incident_id", inc.ID.String()).
		Str("server_id", rule.ServerID.String()).
		Str("rule_name", rule.Name).
		Str("condition", condition).
		Msg("Incident opened")

	m.publish(inc, rule.Name, condition)
	m.sendNotification(ctx, inc, rule, condition, notify.StatusFired, at)

	if m.analyzer != nil {
		if !m.analyzer.EnqueueIncident(inc.ID, condition) {
			log.Warn().
				Str("incident_id", inc.ID.String()).
				Msg("Analysis queue full, incident proceeds without enrichment")
		}
	}
	return inc, nil
}

// HandleRecovery resolves the rule's open incident, if any, because the
// metric returned to a healthy range. Idempotent: no open incident means
// nothing to do.
func (m *Manager) HandleRecovery(ctx context.Context, rule storage.AlertRule, at time.Time) error {
	inc, err := m.store.OpenIncident(ctx, rule.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return m.resolve(ctx, inc, rule, at)
}

// Resolve resolves an incident by ID, the manual path used by the API.
// Resolving an already-resolved incident is a no-op.
func (m *Manager) Resolve(ctx context.Context, incidentID uuid.UUID, at time.Time) error {
	inc, err := m.store.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	rule, err := m.store.GetRule(ctx, inc.RuleID)
	if err != nil {
		return err
	}
	return m.resolve(ctx, inc, *rule, at)
}

// resolve performs the terminal transition. The conditional write decides
// the winner under races: only the caller that flipped the row notifies.
func (m *Manager) resolve(ctx context.Context, inc *storage.Incident, rule storage.AlertRule, at time.Time) error {
	resolved, err := m.store.ResolveIncident(ctx, inc.ID, at)
	if err != nil {
		return err
	}
	if !resolved {
		return nil
	}

	log.Info().
		Str("incident_id", inc.ID.String()).
		Str("rule_name", rule.Name).
		Msg("Incident resolved")

	condition := "condition cleared"
	resolvedInc := *inc
	resolvedInc.Status = storage.IncidentStatusResolved
	resolvedInc.ResolvedAt = &at
	resolvedInc.Open = nil

	m.publish(&resolvedInc, rule.Name, condition)
	m.sendNotification(ctx, &resolvedInc, rule, condition, notify.StatusResolved, at)
	return nil
}

// publish emits the incident event to live WebSocket subscribers.
func (m *Manager) publish(inc *storage.Incident, ruleName, condition string) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(fanout.Event{
		Type:     "incident",
		ServerID: inc.ServerID,
		Data: map[string]interface{}{
			"incident_id": inc.ID,
			"rule_name":   ruleName,
			"status":      inc.Status,
			"condition":   condition,
		},
	})
}

// sendNotification resolves the server's delivery targets and dispatches.
// Failures are logged; they never fail the transition.
func (m *Manager) sendNotification(ctx context.Context, inc *storage.Incident, rule storage.AlertRule, condition, status string, at time.Time) {
	if m.notifier == nil {
		return
	}
	server, err := m.store.GetServer(ctx, inc.ServerID)
	if err != nil {
		log.Error().
			Err(err).
			Str("incident_id", inc.ID.String()).
			Msg("Failed to load server for notification")
		return
	}

	m.notifier.Send(ctx, notify.Event{
		IncidentID:     inc.ID,
		ServerID:       server.ID,
		Hostname:       server.Hostname,
		RuleName:       rule.Name,
		Condition:      condition,
		Status:         status,
		At:             at,
		OwnerEmail:     server.OwnerEmail,
		WebhookURL:     server.WebhookURL,
		WebhookHeaders: decodeHeaders(server.WebhookHeaders),
	})
}

// decodeHeaders parses the server's stored webhook header document.
func decodeHeaders(raw storage.JSON) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil
	}
	return headers
}
