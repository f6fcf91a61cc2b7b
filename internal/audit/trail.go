// Package audit keeps a record of every analysis and alert. Entries are
// buffered in memory for querying and published to the audit topic.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/walletscope/internal/alerts"
	"github.com/nexus-trading/walletscope/internal/bus"
	"github.com/nexus-trading/walletscope/internal/coordinator"
)

// Entry event types.
const (
	EventAnalysis = "analysis"
	EventAlert    = "alert"
)

// Entry is one audit record.
type Entry struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"` // analysis|alert
	Timestamp time.Time `json:"ts"`
	Wallet    string    `json:"wallet"`
	Rating    string    `json:"rating,omitempty"`
	Score     int       `json:"score"`
	Decision  string    `json:"decision,omitempty"` // alert type for alert entries
	Degraded  int       `json:"degraded,omitempty"`
	Payload   string    `json:"payload"` // JSON of the full report or alert
}

// Trail records analyses and alerts. It implements coordinator.Sink and
// alerts.Recorder.
type Trail struct {
	mu       sync.Mutex
	producer bus.Producer
	entries  []Entry
	maxBuf   int
	now      func() time.Time
}

var (
	_ coordinator.Sink = (*Trail)(nil)
	_ alerts.Recorder  = (*Trail)(nil)
)

// NewTrail creates a trail. maxBuf caps the in-memory buffer, evicting the
// oldest entry first; 0 disables buffering. A nil producer skips publishing.
func NewTrail(producer bus.Producer, maxBuf int) *Trail {
	if maxBuf < 0 {
		maxBuf = 0
	}
	return &Trail{
		producer: producer,
		entries:  make([]Entry, 0, maxBuf),
		maxBuf:   maxBuf,
		now:      time.Now,
	}
}

// Record implements coordinator.Sink: it audits the report and publishes a
// WalletAnalyzed event.
func (t *Trail) Record(ctx context.Context, r *coordinator.Report) error {
	base := bus.NewBaseEvent("walletscope", t.now())

	scores := make(map[string]int, len(r.Detailed.TokenForensics))
	for mint, tr := range r.Detailed.TokenForensics {
		scores[mint] = tr.RiskScore
	}

	entry := Entry{
		EventID:   base.EventID,
		EventType: EventAnalysis,
		Timestamp: base.Timestamp,
		Wallet:    r.Wallet,
		Rating:    string(r.RiskRating),
		Score:     r.TrustScore,
		Degraded:  len(r.Degraded),
		Payload:   mustMarshal(r),
	}
	if err := t.record(ctx, entry); err != nil {
		return err
	}

	if t.producer == nil {
		return nil
	}
	return t.producer.PublishJSON(ctx, bus.TopicWalletAnalyzed, r.Wallet, bus.WalletAnalyzed{
		BaseEvent:   base,
		Wallet:      r.Wallet,
		TrustScore:  r.TrustScore,
		RiskRating:  string(r.RiskRating),
		TotalTokens: r.TotalTokens,
		Suspicious:  r.Detailed.TransactionMonitor.Suspicious,
		Degraded:    r.Degraded,
		TokenScores: scores,
	})
}

// RecordAlert implements alerts.Recorder.
func (t *Trail) RecordAlert(ctx context.Context, a alerts.Alert) error {
	base := bus.NewBaseEvent("walletscope", t.now())
	base.CorrelationID = a.ID

	entry := Entry{
		EventID:   base.EventID,
		EventType: EventAlert,
		Timestamp: base.Timestamp,
		Wallet:    a.Wallet,
		Rating:    string(a.Rating),
		Score:     a.Score,
		Decision:  string(a.Type),
		Payload:   mustMarshal(a),
	}
	if err := t.record(ctx, entry); err != nil {
		return err
	}

	if t.producer == nil {
		return nil
	}
	return t.producer.PublishJSON(ctx, bus.TopicAlerts, a.Wallet, bus.AlertRaised{
		BaseEvent: base,
		AlertID:   a.ID,
		AlertType: string(a.Type),
		Wallet:    a.Wallet,
		Score:     a.Score,
		Message:   a.Message,
		Signature: a.Signature,
	})
}

// Query returns the buffered entries for wallet, oldest first.
func (t *Trail) Query(wallet string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []Entry
	for _, e := range t.entries {
		if e.Wallet == wallet {
			result = append(result, e)
		}
	}
	return result
}

// Entries returns a copy of the buffer.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Entry, len(t.entries))
	copy(result, t.entries)
	return result
}

// Len returns the number of buffered entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// record buffers entry and publishes it to the audit topic.
func (t *Trail) record(ctx context.Context, entry Entry) error {
	t.mu.Lock()
	if t.maxBuf > 0 {
		if len(t.entries) >= t.maxBuf {
			copy(t.entries, t.entries[1:])
			t.entries[len(t.entries)-1] = entry
		} else {
			t.entries = append(t.entries, entry)
		}
	}
	t.mu.Unlock()

	if t.producer == nil {
		return nil
	}
	if err := t.producer.PublishJSON(ctx, bus.TopicAudit, entry.Wallet, entry); err != nil {
		log.Error().Err(err).Str("event_type", entry.EventType).Str("wallet", entry.Wallet).
			Msg("audit: failed to publish entry")
		return err
	}
	return nil
}

// mustMarshal marshals v to JSON, returning "{}" on error.
func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("audit: failed to marshal payload")
		return "{}"
	}
	return string(data)
}
