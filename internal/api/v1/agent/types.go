package agent

import (
	"encoding/json"
	"time"
)

// RegisterRequest is the agent registration payload.
type RegisterRequest struct {
	Fingerprint string          `json:"fingerprint" binding:"required"`
	Pubkey      string          `json:"pubkey"`
	Hostname    string          `json:"hostname"`
	Tags        json.RawMessage `json:"tags"`
}

// RegisterResponse returns the server identity and ingestion credential.
type RegisterResponse struct {
	ServerID  string `json:"server_id"`
	AuthToken string `json:"auth_token"`
}

// SampleRequest is one metric sample inside an ingestion batch. Payload is
// the ordered [{name, value}] list; Meta optionally carries the process
// snapshot.
type SampleRequest struct {
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
	Meta      json.RawMessage `json:"meta"`
}

// MetricsRequest is the metric ingestion payload.
type MetricsRequest struct {
	Samples []SampleRequest `json:"samples" binding:"required,min=1"`
}

// LogRequest is one log entry inside an ingestion batch.
type LogRequest struct {
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level" binding:"required"`
	Source    string          `json:"source"`
	EventID   string          `json:"event_id"`
	Message   string          `json:"message" binding:"required"`
	Meta      json.RawMessage `json:"meta"`
}

// LogsRequest is the log ingestion payload.
type LogsRequest struct {
	Logs []LogRequest `json:"logs" binding:"required,min=1"`
}
