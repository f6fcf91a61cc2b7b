package coordinator

import (
	"fmt"
	"strings"

	"github.com/nexus-trading/walletscope/internal/advisor"
	"github.com/nexus-trading/walletscope/internal/forensics"
	"github.com/nexus-trading/walletscope/internal/monitor"
	"github.com/nexus-trading/walletscope/internal/risk"
)

// Report is the assembled analysis of one wallet. It is never mutated
// after AnalyzeWallet returns it.
type Report struct {
	Wallet          string      `json:"wallet"`
	CombinedSummary string      `json:"combined_summary"`
	Detailed        Detailed    `json:"detailed"`
	TrustScore      int         `json:"trust_score"`
	RiskRating      risk.Rating `json:"risk_rating"`
	TotalTokens     int         `json:"total_tokens"`
	// Degraded lists, sorted, every input that was replaced by a default.
	Degraded []string `json:"degraded"`
}

// Detailed always carries all three specialist sections.
type Detailed struct {
	TokenForensics     map[string]forensics.TokenRisk `json:"token_forensics"`
	TransactionMonitor monitor.Verdict                `json:"transaction_monitor"`
	RiskAdvisor        advisor.Advice                 `json:"risk_advisor"`
}

// IsDegraded reports whether any section ran on default data.
func (r *Report) IsDegraded() bool {
	return len(r.Degraded) > 0
}

var tierSentences = map[risk.Rating]string{
	risk.RatingLow:    "No significant issues detected in the wallet's activity or token holdings.",
	risk.RatingMedium: "Some risk factors were identified that may require attention.",
	risk.RatingHigh:   "Multiple high-risk indicators were detected. Exercise caution when interacting with this wallet.",
}

// Summary renders the combined narrative. Output depends only on its inputs.
func Summary(wallet string, rating risk.Rating, score int) string {
	return fmt.Sprintf(
		"Wallet Analysis Summary for %s\n\nRisk Assessment: %s (%d/100)\n\nThis wallet shows %s risk indicators based on our analysis. %s",
		shortAddress(wallet), rating, score, strings.ToLower(string(rating)), tierSentences[rating],
	)
}

func shortAddress(w string) string {
	if len(w) <= 10 {
		return w
	}
	return w[:6] + "..." + w[len(w)-4:]
}
