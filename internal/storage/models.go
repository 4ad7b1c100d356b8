// Package storage defines the data models for the Nabz monitoring backend.
//
// All models are GORM entities. Schema constraints that the engine's
// correctness depends on (unique indexes, composite keys) are declared on
// the struct tags so AutoMigrate produces them on both SQLite and Postgres.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSON is a raw JSON column. It stores the document verbatim and defers
// interpretation to the caller.
type JSON json.RawMessage

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// Server represents a monitored host registered by its agent.
//
// A server is created at agent registration, keyed by the agent's
// fingerprint, and authenticated on every ingestion call by its AuthToken.
// It stays unclaimed (OwnerEmail nil) until an owner is assigned.
// Deleting a server cascades all owned entities.
type Server struct {
	// ID is the opaque server identity used throughout the system
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Fingerprint uniquely identifies the agent installation
	Fingerprint string `gorm:"uniqueIndex;not null"`

	// Pubkey is the agent's public key submitted at registration
	Pubkey string

	// Hostname is the reported host name (display only)
	Hostname string

	// Tags holds free-form agent-supplied labels
	Tags JSON

	// AuthToken is the server-bound credential for metric/log submission
	AuthToken string `gorm:"uniqueIndex;not null"`

	// OwnerEmail is the notification contact; nil until the server is claimed
	OwnerEmail *string

	// Webhook delivery settings (optional alternative notification target)
	WebhookURL     *string
	WebhookFormat  *string
	WebhookHeaders JSON

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Rules     []AlertRule    `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
	Samples   []MetricSample `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
	Logs      []LogEntry     `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
	Baselines []MetricBaseline `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
	Incidents []Incident     `gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate assigns the server identity and credential.
func (s *Server) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.AuthToken == "" {
		token, err := generateAuthToken()
		if err != nil {
			return fmt.Errorf("failed to generate auth token: %w", err)
		}
		s.AuthToken = token
	}
	return nil
}

// MetricSample is one agent-reported measurement batch entry.
//
// Payload is the ordered list of named values exactly as submitted:
// [{"name": "cpu.percent", "value": 12.5}, {"name": "disk", "value": [...]}].
// Values may be scalars or nested structures; extraction is centralized in
// the metrics package. Samples are immutable once stored.
type MetricSample struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ServerID  uuid.UUID `gorm:"type:uuid;not null;index:idx_samples_server_ts,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_samples_server_ts,priority:2"`

	// Payload is the ordered [{name, value}] metric list
	Payload JSON `gorm:"not null"`

	// Meta carries free-form metadata, including the optional process
	// snapshot under the "processes" key
	Meta JSON

	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns the sample identity.
func (m *MetricSample) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// LogEntry is one agent-reported log line.
type LogEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ServerID  uuid.UUID `gorm:"type:uuid;not null;index:idx_logs_server_ts,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_logs_server_ts,priority:2"`

	// Level is the log severity: info, warning, error
	Level string `gorm:"not null;index"`

	Source  string
	EventID string
	Message string `gorm:"not null"`
	Meta    JSON

	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns the log entry identity.
func (l *LogEntry) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// MetricBaseline holds the rolling per-hour statistical profile of one
// metric on one server, used as the anomaly detection reference.
//
// Exactly one row exists per (server, metric, hour-of-day) key; the
// composite unique index enforces it and the calculator upserts against it.
type MetricBaseline struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	ServerID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_baseline_key,priority:1"`
	MetricName string    `gorm:"not null;uniqueIndex:idx_baseline_key,priority:2"`

	// HourOfDay is the UTC hour bucket, 0-23
	HourOfDay int `gorm:"not null;uniqueIndex:idx_baseline_key,priority:3"`

	Mean   float64 `gorm:"not null"`
	StdDev float64 `gorm:"not null"`

	UpdatedAt time.Time `gorm:"not null"`
}

// AlertRule is the configuration for one alerting condition on one server.
//
// Rules are created and edited by the management API; the engine only
// reads them.
type AlertRule struct {
	ID       int64     `gorm:"primaryKey;autoIncrement"`
	ServerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_rules_server_name,priority:1"`

	// Name is unique per server
	Name string `gorm:"not null;uniqueIndex:idx_rules_server_name,priority:2"`

	// Metric selects what the rule watches: cpu, memory, disk
	Metric string `gorm:"not null"`

	// Kind is the rule variant: threshold or anomaly
	Kind string `gorm:"not null"`

	// Threshold-only fields; ignored for anomaly rules
	Operator        string  `gorm:""`
	Threshold       float64 `gorm:""`
	DurationMinutes int     `gorm:""`

	Enabled bool `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Validate validates the AlertRule entity.
func (r *AlertRule) Validate() error {
	return ValidateAlertRule(r)
}

// Incident tracks one firing-to-resolution episode of a rule violation.
//
// The Open marker is 1 while the incident is unresolved and NULL once
// resolved. Together with the (rule_id, open) unique index this guarantees
// at most one unresolved incident per rule at the database level: NULL
// values never collide, so any number of resolved incidents can coexist,
// while a second open insert for the same rule fails with a duplicate-key
// error. Concurrent evaluators rely on this instead of application locks.
type Incident struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ServerID uuid.UUID `gorm:"type:uuid;not null;index"`
	RuleID   int64     `gorm:"not null;uniqueIndex:idx_incidents_rule_open,priority:1"`

	// Open is 1 while unresolved, NULL once resolved
	Open *int16 `gorm:"uniqueIndex:idx_incidents_rule_open,priority:2"`

	// Status: investigating -> active -> resolved (resolution is terminal)
	Status string `gorm:"not null"`

	TriggeredAt time.Time  `gorm:"not null"`
	ResolvedAt  *time.Time `gorm:""`

	// Summary is the root-cause text attached once analysis completes
	Summary *string

	// CorrelatedData is the correlation snapshot persisted for audit
	CorrelatedData JSON

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns the incident identity and open marker.
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Open == nil {
		open := int16(1)
		i.Open = &open
	}
	return nil
}

// TableName methods return the database table name for each model.

// TableName returns the database table name for Server.
func (*Server) TableName() string {
	return "servers"
}

// TableName returns the database table name for MetricSample.
func (*MetricSample) TableName() string {
	return "metric_samples"
}

// TableName returns the database table name for LogEntry.
func (*LogEntry) TableName() string {
	return "logs"
}

// TableName returns the database table name for MetricBaseline.
func (*MetricBaseline) TableName() string {
	return "metric_baselines"
}

// TableName returns the database table name for AlertRule.
func (*AlertRule) TableName() string {
	return "alert_rules"
}

// TableName returns the database table name for Incident.
func (*Incident) TableName() string {
	return "incidents"
}

// RuleKind constants define the supported rule variants.
const (
	RuleKindThreshold = "threshold"
	RuleKindAnomaly   = "anomaly"
)

// RuleMetric constants define the supported metric selectors.
const (
	RuleMetricCPU    = "cpu"
	RuleMetricMemory = "memory"
	RuleMetricDisk   = "disk"
)

// RuleOperator constants define the supported threshold comparisons.
const (
	RuleOperatorAbove = ">"
	RuleOperatorBelow = "<"
)

// IncidentStatus constants define the incident lifecycle states.
const (
	IncidentStatusInvestigating = "investigating"
	IncidentStatusActive        = "active"
	IncidentStatusResolved      = "resolved"
)

// LogLevel constants define the recognized log severities.
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)
