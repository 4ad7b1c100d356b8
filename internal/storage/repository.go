package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Repository implements the persistence contracts the engine components
// depend on: the metric store, the incident store, and the read-only
// rule/server configuration source.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository backed by the given storage.
func NewRepository(s *Storage) *Repository {
	return &Repository{db: s.DB()}
}

// ---------------------------------------------------------------------------
// Servers

// RegisterServer registers a server by fingerprint, idempotently.
//
// If a server with the fingerprint already exists it is returned unchanged.
// A concurrent registration racing on the same fingerprint loses the insert
// with a duplicate-key error and falls back to reading the winner's row.
func (r *Repository) RegisterServer(ctx context.Context, server *Server) (*Server, error) {
	var existing Server
	err := r.db.WithContext(ctx).Where("fingerprint = ?", server.Fingerprint).First(&existing).Error
	switch {
	case err == nil:
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Proceed with insert
	default:
		return nil, fmt.Errorf("failed to look up server by fingerprint: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(server).Error; err != nil {
		if isDuplicateKey(err) {
			// Another request inserted the same fingerprint first
			if err := r.db.WithContext(ctx).Where("fingerprint = ?", server.Fingerprint).First(&existing).Error; err != nil {
				return nil, fmt.Errorf("failed to load server after registration race: %w", err)
			}
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to register server: %w", err)
	}
	return server, nil
}

// GetServer loads a server by ID. Returns ErrNotFound when absent.
func (r *Repository) GetServer(ctx context.Context, id uuid.UUID) (*Server, error) {
	var server Server
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&server).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load server: %w", err)
	}
	return &server, nil
}

// GetServerByToken authenticates a server-bound credential.
// Returns ErrNotFound for unknown tokens.
func (r *Repository) GetServerByToken(ctx context.Context, token string) (*Server, error) {
	var server Server
	if err := r.db.WithContext(ctx).Where("auth_token = ?", token).First(&server).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to authenticate server token: %w", err)
	}
	return &server, nil
}

// ListServers returns all registered servers.
func (r *Repository) ListServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	return servers, nil
}

// DeleteServer removes a server; owned entities cascade via foreign keys.
func (r *Repository) DeleteServer(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&Server{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete server: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateServer persists owner and webhook settings changed via the API.
func (r *Repository) UpdateServer(ctx context.Context, server *Server) error {
	if err := r.db.WithContext(ctx).Save(server).Error; err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Metric samples and logs

// AppendSamples persists a batch of samples in a single transaction:
// either the whole batch is stored or none of it is.
func (r *Repository) AppendSamples(ctx context.Context, samples []*MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(samples).Error; err != nil {
		return fmt.Errorf("failed to append metric samples: %w", err)
	}
	return nil
}

// QuerySamples returns samples for one server inside [from, to],
// oldest first, capped at limit.
func (r *Repository) QuerySamples(ctx context.Context, serverID uuid.UUID, from, to time.Time, limit int) ([]MetricSample, error) {
	var samples []MetricSample
	if err := r.db.WithContext(ctx).
		Where("server_id = ? AND timestamp >= ? AND timestamp <= ?", serverID, from, to).
		Order("timestamp ASC").
		Limit(limit).
		Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("failed to query metric samples: %w", err)
	}
	return samples, nil
}

// RecentSamples returns the most recent samples at or before the given
// time, newest first, capped at limit.
func (r *Repository) RecentSamples(ctx context.Context, serverID uuid.UUID, before time.Time, limit int) ([]MetricSample, error) {
	var samples []MetricSample
	if err := r.db.WithContext(ctx).
		Where("server_id = ? AND timestamp <= ?", serverID, before).
		Order("timestamp DESC").
		Limit(limit).
		Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent samples: %w", err)
	}
	return samples, nil
}

// AppendLogs persists a batch of log entries in a single transaction.
func (r *Repository) AppendLogs(ctx context.Context, entries []*LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(entries).Error; err != nil {
		return fmt.Errorf("failed to append log entries: %w", err)
	}
	return nil
}

// RecentLogs returns the most recent log entries at or before the given
// time, newest first, capped at limit. When levels is non-empty only
// entries at those severities are returned.
func (r *Repository) RecentLogs(ctx context.Context, serverID uuid.UUID, before time.Time, levels []string, limit int) ([]LogEntry, error) {
	query := r.db.WithContext(ctx).
		Where("server_id = ? AND timestamp <= ?", serverID, before)
	if len(levels) > 0 {
		query = query.Where("level IN ?", levels)
	}

	var entries []LogEntry
	if err := query.
		Order("timestamp DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent logs: %w", err)
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Baselines

// UpsertBaseline inserts or updates the baseline row for
// (server, metric, hour). Idempotent: re-running with the same key
// overwrites mean/stddev in place.
func (r *Repository) UpsertBaseline(ctx context.Context, serverID uuid.UUID, metric string, hour int, mean, stddev float64) error {
	baseline := MetricBaseline{
		ServerID:   serverID,
		MetricName: metric,
		HourOfDay:  hour,
		Mean:       mean,
		StdDev:     stddev,
		UpdatedAt:  time.Now(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}, {Name: "metric_name"}, {Name: "hour_of_day"}},
		DoUpdates: clause.AssignmentColumns([]string{"mean", "std_dev", "updated_at"}),
	}).Create(&baseline).Error
	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}
	return nil
}

// GetBaseline loads the baseline row for (server, metric, hour).
// Returns ErrNotFound when no baseline has been computed for the bucket.
func (r *Repository) GetBaseline(ctx context.Context, serverID uuid.UUID, metric string, hour int) (*MetricBaseline, error) {
	var baseline MetricBaseline
	err := r.db.WithContext(ctx).
		Where("server_id = ? AND metric_name = ? AND hour_of_day = ?", serverID, metric, hour).
		First(&baseline).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}
	return &baseline, nil
}

// ---------------------------------------------------------------------------
// Alert rules

// EnabledRules returns the enabled alert rules for one server.
func (r *Repository) EnabledRules(ctx context.Context, serverID uuid.UUID) ([]AlertRule, error) {
	var rules []AlertRule
	if err := r.db.WithContext(ctx).
		Where("server_id = ? AND enabled = ?", serverID, true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to load enabled rules: %w", err)
	}
	return rules, nil
}

// ListRules returns all rules for one server.
func (r *Repository) ListRules(ctx context.Context, serverID uuid.UUID) ([]AlertRule, error) {
	var rules []AlertRule
	if err := r.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// CreateRule validates and persists a new rule. A rule name collision on
// the same server surfaces as a duplicate-key error.
func (r *Repository) CreateRule(ctx context.Context, rule *AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("rule %q already exists for server: %w", rule.Name, err)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// UpdateRule validates and persists rule changes.
func (r *Repository) UpdateRule(ctx context.Context, rule *AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule. Returns ErrNotFound when absent.
func (r *Repository) DeleteRule(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&AlertRule{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRule loads a rule by ID. Returns ErrNotFound when absent.
func (r *Repository) GetRule(ctx context.Context, id int64) (*AlertRule, error) {
	var rule AlertRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return &rule, nil
}

// ---------------------------------------------------------------------------
// Incidents

// CreateIncidentIfAbsent creates a new investigating incident for the rule
// unless an unresolved one already exists.
//
// The "no existing unresolved incident" check is not a separate read: the
// insert itself collides with the (rule_id, open) unique index when an open
// incident exists, so the check-and-create is atomic under concurrent
// evaluations. The loser of a race receives the already-open incident and
// created=false.
func (r *Repository) CreateIncidentIfAbsent(ctx context.Context, serverID uuid.UUID, ruleID int64, triggeredAt time.Time) (*Incident, bool, error) {
	incident := &Incident{
		ServerID:    serverID,
		RuleID:      ruleID,
		Status:      IncidentStatusInvestigating,
		TriggeredAt: triggeredAt,
	}

	if err := r.db.WithContext(ctx).Create(incident).Error; err != nil {
		if isDuplicateKey(err) {
			existing, lookupErr := r.OpenIncident(ctx, ruleID)
			if lookupErr != nil {
				// The open incident may have been resolved between our
				// insert and this read; report the conflict upward.
				return nil, false, fmt.Errorf("incident exists but could not be loaded: %w", lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create incident: %w", err)
	}
	return incident, true, nil
}

// OpenIncident returns the unresolved incident for a rule, or ErrNotFound.
func (r *Repository) OpenIncident(ctx context.Context, ruleID int64) (*Incident, error) {
	var incident Incident
	err := r.db.WithContext(ctx).
		Where("rule_id = ? AND open IS NOT NULL", ruleID).
		First(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load open incident: %w", err)
	}
	return &incident, nil
}

// LatestIncident loads the rule's most recent incident regardless of its
// state, used by the evaluator's anomaly cooldown. Returns ErrNotFound
// when the rule never fired.
func (r *Repository) LatestIncident(ctx context.Context, ruleID int64) (*Incident, error) {
	var incident Incident
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("triggered_at DESC").
		First(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load latest incident: %w", err)
	}
	return &incident, nil
}

// GetIncident loads an incident by ID. Returns ErrNotFound when absent.
func (r *Repository) GetIncident(ctx context.Context, id uuid.UUID) (*Incident, error) {
	var incident Incident
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&incident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	return &incident, nil
}

// ListIncidents returns one page of a server's incidents, newest first,
// together with the total count for pagination.
func (r *Repository) ListIncidents(ctx context.Context, serverID uuid.UUID, offset, limit int) ([]Incident, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&Incident{}).
		Where("server_id = ?", serverID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	var incidents []Incident
	if err := r.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("triggered_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&incidents).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, total, nil
}

// ResolveIncident transitions an incident to resolved.
//
// The update is a compare-and-set on "not yet resolved": resolving an
// already-resolved incident affects zero rows and reports resolved=false
// without error, making resolution idempotent and terminal. The open
// marker is cleared so a new incident for the rule may be created.
func (r *Repository) ResolveIncident(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Incident{}).
		Where("id = ? AND status <> ?", id, IncidentStatusResolved).
		Updates(map[string]interface{}{
			"status":      IncidentStatusResolved,
			"resolved_at": at,
			"open":        nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to resolve incident: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AttachCorrelation persists the correlation snapshot on the incident for
// audit/reproducibility. It does not change the incident status.
func (r *Repository) AttachCorrelation(ctx context.Context, id uuid.UUID, snapshot JSON) error {
	res := r.db.WithContext(ctx).Model(&Incident{}).
		Where("id = ?", id).
		Update("correlated_data", snapshot)
	if res.Error != nil {
		return fmt.Errorf("failed to attach correlation snapshot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachSummary attaches the analysis summary and advances the incident
// from investigating to active.
//
// This is a compare-and-set on status=investigating: if a manual resolve
// raced ahead of the analysis, zero rows match and attached=false is
// returned, so a late summary never resurrects a resolved incident.
func (r *Repository) AttachSummary(ctx context.Context, id uuid.UUID, summary string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Incident{}).
		Where("id = ? AND status = ?", id, IncidentStatusInvestigating).
		Updates(map[string]interface{}{
			"status":  IncidentStatusActive,
			"summary": summary,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to attach summary: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// isDuplicateKey reports whether err is a unique-constraint violation.
// TranslateError covers most drivers; the string check keeps SQLite
// builds without translation working.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
