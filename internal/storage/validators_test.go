package storage

import (
	"strings"
	"testing"
)

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		server  Server
		wantErr string
	}{
		{
			name:   "valid server",
			server: Server{Fingerprint: "fp-1", Hostname: "web-01"},
		},
		{
			name:    "empty fingerprint",
			server:  Server{Hostname: "web-01"},
			wantErr: "fingerprint",
		},
		{
			name:    "fingerprint too long",
			server:  Server{Fingerprint: strings.Repeat("a", 256)},
			wantErr: "too long",
		},
		{
			name:    "hostname too long",
			server:  Server{Fingerprint: "fp-1", Hostname: strings.Repeat("h", 256)},
			wantErr: "hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServer(&tt.server)
			checkValidationErr(t, err, tt.wantErr)
		})
	}
}

func TestValidateAlertRule(t *testing.T) {
	valid := AlertRule{
		Name:            "cpu-high",
		Metric:          RuleMetricCPU,
		Kind:            RuleKindThreshold,
		Operator:        RuleOperatorAbove,
		Threshold:       90,
		DurationMinutes: 5,
	}

	tests := []struct {
		name    string
		mutate  func(*AlertRule)
		wantErr string
	}{
		{
			name:   "valid threshold rule",
			mutate: func(r *AlertRule) {},
		},
		{
			name: "valid anomaly rule ignores comparison fields",
			mutate: func(r *AlertRule) {
				r.Kind = RuleKindAnomaly
				r.Operator = ""
				r.Threshold = -1
				r.DurationMinutes = 0
			},
		},
		{
			name:    "empty name",
			mutate:  func(r *AlertRule) { r.Name = "" },
			wantErr: "name cannot be empty",
		},
		{
			name:    "name too long",
			mutate:  func(r *AlertRule) { r.Name = strings.Repeat("n", 101) },
			wantErr: "too long",
		},
		{
			name:    "unknown metric",
			mutate:  func(r *AlertRule) { r.Metric = "network" },
			wantErr: "metric",
		},
		{
			name:    "unknown kind",
			mutate:  func(r *AlertRule) { r.Kind = "trend" },
			wantErr: "kind",
		},
		{
			name:    "unknown operator",
			mutate:  func(r *AlertRule) { r.Operator = ">=" },
			wantErr: "operator",
		},
		{
			name:    "threshold below range",
			mutate:  func(r *AlertRule) { r.Threshold = -0.5 },
			wantErr: "threshold",
		},
		{
			name:    "threshold above range",
			mutate:  func(r *AlertRule) { r.Threshold = 100.5 },
			wantErr: "threshold",
		},
		{
			name:    "zero duration",
			mutate:  func(r *AlertRule) { r.DurationMinutes = 0 },
			wantErr: "duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			tt.mutate(&rule)
			err := ValidateAlertRule(&rule)
			checkValidationErr(t, err, tt.wantErr)
		})
	}
}

func TestValidateLogEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   LogEntry
		wantErr string
	}{
		{
			name:  "valid entry",
			entry: LogEntry{Level: LogLevelError, Message: "disk read failed"},
		},
		{
			name:    "empty message",
			entry:   LogEntry{Level: LogLevelInfo},
			wantErr: "message",
		},
		{
			name:    "unknown level",
			entry:   LogEntry{Level: "critical", Message: "boom"},
			wantErr: "level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLogEntry(&tt.entry)
			checkValidationErr(t, err, tt.wantErr)
		})
	}
}

func TestIsValidIncidentStatus(t *testing.T) {
	for _, status := range []string{IncidentStatusInvestigating, IncidentStatusActive, IncidentStatusResolved} {
		if !IsValidIncidentStatus(status) {
			t.Errorf("IsValidIncidentStatus(%q) = false, want true", status)
		}
	}
	if IsValidIncidentStatus("closed") {
		t.Error(`IsValidIncidentStatus("closed") = true, want false`)
	}
}

func TestGenerateAuthToken(t *testing.T) {
	a, err := generateAuthToken()
	if err != nil {
		t.Fatalf("generateAuthToken() error = %v", err)
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}

	b, err := generateAuthToken()
	if err != nil {
		t.Fatalf("generateAuthToken() error = %v", err)
	}
	if a == b {
		t.Error("consecutive tokens are identical")
	}
}

func checkValidationErr(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		return
	}
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to mention %q", err, want)
	}
}
