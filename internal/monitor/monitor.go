// Package monitor scans a wallet's activity timeline for large outflows.
package monitor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nexus-trading/walletscope/internal/solana"
)

// NoActivitySummary is the summary of a verdict that found nothing.
const NoActivitySummary = "No suspicious activity detected."

// Config holds the outflow rule.
type Config struct {
	LargeOutflowSOL float64 `yaml:"large_outflow_sol"` // default: 100
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{LargeOutflowSOL: 100}
}

// Verdict is the monitor's result for one wallet.
type Verdict struct {
	Suspicious bool             `json:"suspicious"`
	Summary    string           `json:"summary"`
	CheckedTxs int              `json:"checked_txs"`
	Signature  string           `json:"signature,omitempty"`
	Change     *decimal.Decimal `json:"change,omitempty"`
}

// Placeholder is the verdict used when no activity could be read.
func Placeholder() Verdict {
	return Verdict{Summary: NoActivitySummary}
}

// Monitor applies the outflow rule to an ordered activity list.
type Monitor struct {
	threshold decimal.Decimal
}

// New creates a monitor. A non-positive threshold falls back to the default.
func New(config Config) *Monitor {
	t := config.LargeOutflowSOL
	if t <= 0 {
		t = DefaultConfig().LargeOutflowSOL
	}
	return &Monitor{threshold: decimal.NewFromFloat(t).Neg()}
}

// Check scans records in order. The first record whose net change is below
// the negative threshold ends the scan; CheckedTxs counts the records
// examined up to and including it.
func (m *Monitor) Check(records []solana.ActivityRecord) Verdict {
	for i, r := range records {
		if r.NetChange.LessThan(m.threshold) {
			change := r.NetChange
			return Verdict{
				Suspicious: true,
				Summary:    fmt.Sprintf("Large outgoing transfer: %s SOL in tx %s", r.NetChange.String(), r.Signature),
				CheckedTxs: i + 1,
				Signature:  string(r.Signature),
				Change:     &change,
			}
		}
	}
	return Verdict{Summary: NoActivitySummary, CheckedTxs: len(records)}
}
