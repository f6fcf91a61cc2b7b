package forensics

import (
	"github.com/shopspring/decimal"

	"github.com/nexus-trading/walletscope/internal/solana"
)

// Flag labels. The scorer adds FlagPoints when any scored flag is present.
const (
	FlagHighConcentration = "High holder concentration"
	FlagSuspiciousName    = "Suspicious name"

	// NoFlagsReason is the reason string of a token that raised no flags.
	NoFlagsReason = "No major flags."
)

// Token is one analysis input: a mint plus whatever metadata was resolved.
type Token struct {
	Mint   solana.Pubkey
	Name   string
	Symbol string

	// BaselineRisk is the score used when the metadata lookup failed and
	// every feature fetch degraded as well. It never lowers a computed score.
	BaselineRisk int
}

// Features are the per-token signals consumed by the scorer.
type Features struct {
	TopHolderPct  float64
	LiquidityUSD  decimal.Decimal
	MintAuthority solana.MintAuthority
	LPLocked      bool
	Flags         []string
}

// TokenRisk is the scored result for one token.
type TokenRisk struct {
	Token         string               `json:"token"`
	Name          string               `json:"name"`
	Symbol        string               `json:"symbol"`
	RiskScore     int                  `json:"risk_score"`
	Reason        string               `json:"reason"`
	Flags         []string             `json:"flags"`
	LiquidityUSD  decimal.Decimal      `json:"liquidity_usd"`
	TopHolderPct  float64              `json:"top_holder_pct"`
	MintAuthority solana.MintAuthority `json:"mint_authority"`
	LPLocked      bool                 `json:"lp_locked"`
	ExplorerURL   string               `json:"explorer_url"`
}

// Result is the analyzer output for a batch of tokens.
type Result struct {
	Tokens   map[string]TokenRisk
	Degraded []string // sorted markers "forensics:<mint>:<feature>"
}

// Scores returns the per-token risk scores keyed by mint.
func (r Result) Scores() map[string]int {
	out := make(map[string]int, len(r.Tokens))
	for mint, t := range r.Tokens {
		out[mint] = t.RiskScore
	}
	return out
}
