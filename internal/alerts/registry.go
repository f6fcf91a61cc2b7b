// Package alerts fans wallet alerts out to subscribed listeners.
package alerts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/walletscope/internal/coordinator"
	"github.com/nexus-trading/walletscope/internal/observability"
	"github.com/nexus-trading/walletscope/internal/risk"
)

// ErrSlowListener is returned by a listener whose outbound buffer is full.
var ErrSlowListener = errors.New("alerts: listener buffer full")

// AlertType classifies an alert.
type AlertType string

const (
	AlertHighRisk   AlertType = "high_risk_wallet"
	AlertSuspicious AlertType = "suspicious_activity"
)

// Alert is one notification pushed to listeners.
type Alert struct {
	ID        string      `json:"id"`
	Type      AlertType   `json:"type"`
	Wallet    string      `json:"wallet"`
	Rating    risk.Rating `json:"rating"`
	Score     int         `json:"score"`
	Message   string      `json:"message"`
	Signature string      `json:"signature,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Listener receives alerts. Send must not block.
type Listener interface {
	ID() string
	Accepts(a Alert) bool
	Send(a Alert) error
}

// Registry owns the set of connected listeners.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]Listener

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string]Listener)}
}

// Add registers l, replacing any listener with the same ID.
func (r *Registry) Add(l Listener) {
	r.mu.Lock()
	r.listeners[l.ID()] = l
	n := len(r.listeners)
	r.mu.Unlock()
	observability.AlertListeners.Set(float64(n))
	log.Debug().Str("listener", l.ID()).Int("total", n).Msg("alerts: listener added")
}

// Remove unregisters the listener with id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.listeners, id)
	n := len(r.listeners)
	r.mu.Unlock()
	observability.AlertListeners.Set(float64(n))
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// IDs returns the registered listener ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Broadcast delivers a to every accepting listener and returns how many
// received it. Listeners that fail are removed.
func (r *Registry) Broadcast(a Alert) int {
	r.mu.RLock()
	targets := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		if l.Accepts(a) {
			targets = append(targets, l)
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, l := range targets {
		if err := l.Send(a); err != nil {
			log.Warn().Err(err).Str("listener", l.ID()).Msg("alerts: dropping listener")
			r.dropped.Add(1)
			r.Remove(l.ID())
			continue
		}
		sent++
	}
	r.delivered.Add(int64(sent))
	observability.AlertsBroadcastTotal.Inc()
	return sent
}

// Clear removes every listener, closing those that support it.
func (r *Registry) Clear() {
	r.mu.Lock()
	old := r.listeners
	r.listeners = make(map[string]Listener)
	r.mu.Unlock()
	for _, l := range old {
		if c, ok := l.(interface{ Close() }); ok {
			c.Close()
		}
	}
	observability.AlertListeners.Set(0)
}

// Stats returns delivery counters.
func (r *Registry) Stats() (delivered, dropped int64) {
	return r.delivered.Load(), r.dropped.Load()
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// NotifierConfig decides which reports raise alerts.
type NotifierConfig struct {
	MinRating    risk.Rating `yaml:"min_rating"`    // default: High
	OnSuspicious bool        `yaml:"on_suspicious"` // default: true
}

// DefaultNotifierConfig returns production defaults.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{MinRating: risk.RatingHigh, OnSuspicious: true}
}

// Recorder persists raised alerts, e.g. to an audit trail.
type Recorder interface {
	RecordAlert(ctx context.Context, a Alert) error
}

// Notifier turns analysis reports into alerts on a Registry.
type Notifier struct {
	config    NotifierConfig
	registry  *Registry
	recorders []Recorder
	now       func() time.Time
}

var _ coordinator.Sink = (*Notifier)(nil)

// NewNotifier creates a notifier publishing to registry.
func NewNotifier(config NotifierConfig, registry *Registry) *Notifier {
	rating, ok := risk.ParseRating(string(config.MinRating))
	if !ok {
		rating = risk.RatingHigh
	}
	config.MinRating = rating
	return &Notifier{config: config, registry: registry, now: time.Now}
}

// AddRecorder registers r to receive every raised alert.
func (n *Notifier) AddRecorder(r Recorder) {
	n.recorders = append(n.recorders, r)
}

// Alerts returns the alerts a report raises, in a stable order.
func (n *Notifier) Alerts(report *coordinator.Report) []Alert {
	var out []Alert
	if ratingRank(report.RiskRating) >= ratingRank(n.config.MinRating) {
		out = append(out, n.newAlert(AlertHighRisk, report, report.Detailed.RiskAdvisor.Reason, ""))
	}
	tx := report.Detailed.TransactionMonitor
	if n.config.OnSuspicious && tx.Suspicious {
		out = append(out, n.newAlert(AlertSuspicious, report, tx.Summary, tx.Signature))
	}
	return out
}

// Record implements coordinator.Sink. Recorder failures are joined into
// the returned error after every alert has been broadcast.
func (n *Notifier) Record(ctx context.Context, report *coordinator.Report) error {
	var errs []error
	for _, a := range n.Alerts(report) {
		sent := n.registry.Broadcast(a)
		log.Info().Str("type", string(a.Type)).Str("wallet", a.Wallet).Int("listeners", sent).
			Msg("alerts: broadcast")
		for _, r := range n.recorders {
			if err := r.RecordAlert(ctx, a); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) newAlert(t AlertType, r *coordinator.Report, msg, sig string) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Type:      t,
		Wallet:    r.Wallet,
		Rating:    r.RiskRating,
		Score:     r.TrustScore,
		Message:   msg,
		Signature: sig,
		CreatedAt: n.now().UTC(),
	}
}

func ratingRank(r risk.Rating) int {
	switch r {
	case risk.RatingHigh:
		return 2
	case risk.RatingMedium:
		return 1
	}
	return 0
}
