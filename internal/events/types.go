package events

import "time"

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRuleFire represents a rule whose action ran
	EventTypeRuleFire EventType = "rule_fire"
	// EventTypeCancellation represents a message that will not be delivered
	EventTypeCancellation EventType = "cancellation"
	// EventTypeOracleVerdict represents an external judgment result
	EventTypeOracleVerdict EventType = "oracle_verdict"
	// EventTypeConnection represents hub connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	StreamID  string      `json:"stream_id,omitempty"`
	Data      interface{} `json:"data"`
}

// RuleFireEvent describes one rule firing on a message
type RuleFireEvent struct {
	StreamID    string `json:"stream_id"`
	Stage       string `json:"stage"`
	Pattern     string `json:"pattern"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// CancellationEvent describes a message whose delivery was cancelled
type CancellationEvent struct {
	StreamID string `json:"stream_id"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// OracleVerdictEvent describes one oracle consultation
type OracleVerdictEvent struct {
	StreamID   string  `json:"stream_id"`
	Verdict    string  `json:"verdict"`
	Send       bool    `json:"send"`
	DurationMS float64 `json:"duration_ms"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}
