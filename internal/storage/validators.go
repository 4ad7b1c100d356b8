// Package storage provides validation functions for database entities.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ValidateServer validates a Server entity before database operations.
func ValidateServer(server *Server) error {
	if server.Fingerprint == "" {
		return fmt.Errorf("server fingerprint cannot be empty")
	}

	if len(server.Fingerprint) > 255 {
		return fmt.Errorf("server fingerprint too long (max 255 chars)")
	}

	if len(server.Hostname) > 255 {
		return fmt.Errorf("server hostname too long (max 255 chars)")
	}

	return nil
}

// ValidateAlertRule validates a complete AlertRule entity before database
// operations.
func ValidateAlertRule(rule *AlertRule) error {
	// Validate required fields
	if rule.Name == "" {
		return fmt.Errorf("rule name cannot be empty")
	}

	if len(rule.Name) > 100 {
		return fmt.Errorf("rule name too long (max 100 chars)")
	}

	if !IsValidRuleMetric(rule.Metric) {
		return fmt.Errorf("unsupported rule metric: %s", rule.Metric)
	}

	if !IsValidRuleKind(rule.Kind) {
		return fmt.Errorf("unsupported rule kind: %s", rule.Kind)
	}

	// Threshold rules carry the comparison; anomaly rules ignore it
	if rule.Kind == RuleKindThreshold {
		if !IsValidRuleOperator(rule.Operator) {
			return fmt.Errorf("unsupported rule operator: %s", rule.Operator)
		}

		if rule.Threshold < 0 || rule.Threshold > 100 {
			return fmt.Errorf("rule threshold must be between 0 and 100, got %v", rule.Threshold)
		}

		if rule.DurationMinutes < 1 {
			return fmt.Errorf("rule duration must be at least 1 minute, got %d", rule.DurationMinutes)
		}
	}

	return nil
}

// ValidateLogEntry validates a LogEntry entity before database operations.
func ValidateLogEntry(entry *LogEntry) error {
	if entry.Message == "" {
		return fmt.Errorf("log message cannot be empty")
	}

	if !IsValidLogLevel(entry.Level) {
		return fmt.Errorf("unsupported log level: %s", entry.Level)
	}

	return nil
}

// IsValidRuleMetric validates if a rule metric selector is supported.
func IsValidRuleMetric(metric string) bool {
	switch metric {
	case RuleMetricCPU, RuleMetricMemory, RuleMetricDisk:
		return true
	default:
		return false
	}
}

// IsValidRuleKind validates if a rule kind is supported.
func IsValidRuleKind(kind string) bool {
	switch kind {
	case RuleKindThreshold, RuleKindAnomaly:
		return true
	default:
		return false
	}
}

// IsValidRuleOperator validates if a threshold operator is supported.
func IsValidRuleOperator(op string) bool {
	switch op {
	case RuleOperatorAbove, RuleOperatorBelow:
		return true
	default:
		return false
	}
}

// IsValidLogLevel validates if a log severity is recognized.
func IsValidLogLevel(level string) bool {
	switch level {
	case LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// IsValidIncidentStatus validates if an incident status is valid.
func IsValidIncidentStatus(status string) bool {
	switch status {
	case IncidentStatusInvestigating, IncidentStatusActive, IncidentStatusResolved:
		return true
	default:
		return false
	}
}

// generateAuthToken generates a secure random auth token.
func generateAuthToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
