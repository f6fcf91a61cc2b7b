package forensics

import (
	"github.com/shopspring/decimal"

	"github.com/nexus-trading/walletscope/internal/risk"
	"github.com/nexus-trading/walletscope/internal/solana"
)

// ScoringRules is the additive point table. Each rule fires independently;
// the sum is clamped to the score range.
type ScoringRules struct {
	ConcentrationPct    float64  `yaml:"concentration_pct"`
	ConcentrationPoints int      `yaml:"concentration_points"`
	MinLiquidityUSD     float64  `yaml:"min_liquidity_usd"`
	LowLiquidityPoints  int      `yaml:"low_liquidity_points"`
	RenouncedPoints     int      `yaml:"renounced_points"`
	UnlockedPoints      int      `yaml:"unlocked_points"`
	FlagPoints          int      `yaml:"flag_points"`
	ScoredFlags         []string `yaml:"scored_flags"`
}

// DefaultScoringRules returns the baseline rule table.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		ConcentrationPct:    40,
		ConcentrationPoints: 40,
		MinLiquidityUSD:     1000,
		LowLiquidityPoints:  30,
		RenouncedPoints:     10,
		UnlockedPoints:      15,
		FlagPoints:          20,
		ScoredFlags:         []string{FlagHighConcentration, FlagSuspiciousName},
	}
}

// Score applies the rule table to f.
func (r ScoringRules) Score(f Features) int {
	score := 0
	if f.TopHolderPct > r.ConcentrationPct {
		score += r.ConcentrationPoints
	}
	if f.LiquidityUSD.LessThan(decimal.NewFromFloat(r.MinLiquidityUSD)) {
		score += r.LowLiquidityPoints
	}
	if f.MintAuthority == solana.AuthorityRenounced {
		score += r.RenouncedPoints
	}
	if !f.LPLocked {
		score += r.UnlockedPoints
	}
	if r.hasScoredFlag(f.Flags) {
		score += r.FlagPoints
	}
	return risk.Clamp(score)
}

func (r ScoringRules) hasScoredFlag(flags []string) bool {
	for _, f := range flags {
		for _, s := range r.ScoredFlags {
			if f == s {
				return true
			}
		}
	}
	return false
}
