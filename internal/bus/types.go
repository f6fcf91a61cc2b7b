package bus

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every event and message header.
const SchemaVersion = "1.0.0"

// BaseEvent contains fields common to all events.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"ts"`
	SchemaVersion string    `json:"schema_version"`
	Producer      string    `json:"producer"`
	TraceID       string    `json:"trace_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewBaseEvent creates a BaseEvent with a fresh event id.
func NewBaseEvent(producer string, now time.Time) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		Timestamp:     now.UTC(),
		SchemaVersion: SchemaVersion,
		Producer:      producer,
	}
}

// --- Analysis Events ---

// WalletAnalyzed is published once per completed analysis.
type WalletAnalyzed struct {
	BaseEvent
	Wallet      string         `json:"wallet"`
	TrustScore  int            `json:"trust_score"`
	RiskRating  string         `json:"risk_rating"`
	TotalTokens int            `json:"total_tokens"`
	Suspicious  bool           `json:"suspicious"`
	Degraded    []string       `json:"degraded"`
	TokenScores map[string]int `json:"token_scores"`
}

// AlertRaised mirrors an alert pushed to live listeners.
type AlertRaised struct {
	BaseEvent
	AlertID   string `json:"alert_id"`
	AlertType string `json:"alert_type"`
	Wallet    string `json:"wallet"`
	Score     int    `json:"score"`
	Message   string `json:"message"`
	Signature string `json:"signature,omitempty"`
}

// AnalysisRequest asks a worker to analyze a wallet.
type AnalysisRequest struct {
	RequestID string `json:"request_id"`
	Wallet    string `json:"wallet"`
}

// --- Heartbeat ---

type Heartbeat struct {
	BaseEvent
	Component string  `json:"component"`
	Status    string  `json:"status"` // healthy|degraded|unhealthy
	Uptime    float64 `json:"uptime_seconds"`
}
