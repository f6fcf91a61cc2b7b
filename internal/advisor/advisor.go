// Package advisor reduces per-token risk scores and the transaction verdict
// into one wallet-level rating and recommendation.
package advisor

import (
	"github.com/nexus-trading/walletscope/internal/monitor"
	"github.com/nexus-trading/walletscope/internal/risk"
)

// Reason sentences.
const (
	ReasonHigh       = "Multiple tokens flagged as high risk."
	ReasonModerate   = "Some tokens show moderate risk features."
	ReasonNone       = "No major risk factors detected."
	ReasonSuspicious = " Suspicious outgoing activity detected."
)

// Recommended actions per tier.
var actions = map[risk.Rating]string{
	risk.RatingHigh:   "Consider withdrawing liquidity, monitor for rug pattern.",
	risk.RatingMedium: "Monitor wallet and avoid new deposits.",
	risk.RatingLow:    "No urgent action needed.",
}

// Config configures the aggregation.
type Config struct {
	Thresholds risk.Thresholds `yaml:"thresholds"`
	// TxContribution is added to the mean token score when the transaction
	// monitor flagged the wallet.
	TxContribution int `yaml:"tx_contribution"` // default: 40
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:     risk.DefaultThresholds(),
		TxContribution: 40,
	}
}

// Advice is the wallet-level verdict.
type Advice struct {
	RiskScore         int         `json:"risk_score"`
	Rating            risk.Rating `json:"overall_risk"`
	Reason            string      `json:"risk_reason"`
	RecommendedAction string      `json:"recommended_next_steps"`
}

// Advisor is a pure reducer; it holds only configuration.
type Advisor struct {
	config Config
}

// New creates an advisor. Invalid thresholds fall back to the defaults.
func New(config Config) *Advisor {
	if !config.Thresholds.Valid() {
		config.Thresholds = risk.DefaultThresholds()
	}
	return &Advisor{config: config}
}

// Thresholds returns the tier boundaries in use.
func (a *Advisor) Thresholds() risk.Thresholds {
	return a.config.Thresholds
}

// Advise computes the truncated mean of scores, adds the transaction
// contribution when tx is suspicious, and maps the clamped result to a tier.
// The result does not depend on map iteration order. A nil tx is treated as
// not suspicious.
func (a *Advisor) Advise(scores map[string]int, tx *monitor.Verdict) Advice {
	sum, anyHigh := 0, false
	for _, s := range scores {
		s = risk.Clamp(s)
		sum += s
		if a.config.Thresholds.IsHigh(s) {
			anyHigh = true
		}
	}

	mean := 0
	if len(scores) > 0 {
		mean = sum / len(scores)
	}

	suspicious := tx != nil && tx.Suspicious
	score := mean
	if suspicious {
		score += a.config.TxContribution
	}
	score = risk.Clamp(score)
	rating := a.config.Thresholds.Rate(score)

	var reason string
	switch {
	case anyHigh:
		reason = ReasonHigh
	case rating != risk.RatingLow:
		reason = ReasonModerate
	default:
		reason = ReasonNone
	}
	if suspicious {
		reason += ReasonSuspicious
	}

	return Advice{
		RiskScore:         score,
		Rating:            rating,
		Reason:            reason,
		RecommendedAction: actions[rating],
	}
}
