package coordinator

import (
	"sort"

	"github.com/nexus-trading/walletscope/internal/advisor"
	"github.com/nexus-trading/walletscope/internal/forensics"
	"github.com/nexus-trading/walletscope/internal/monitor"
	"github.com/nexus-trading/walletscope/internal/solana"
)

// Result carries one pipeline field. When OK is false the reducer replaces
// Value with the section's placeholder. Degraded holds markers for inputs
// that fell back to defaults even when OK is true.
type Result[T any] struct {
	Value    T
	OK       bool
	Degraded []string
}

// Ok wraps a value produced from live data.
func Ok[T any](v T, degraded ...string) Result[T] {
	return Result[T]{Value: v, OK: true, Degraded: degraded}
}

// Failed marks a field as unavailable.
func Failed[T any](markers ...string) Result[T] {
	return Result[T]{Degraded: markers}
}

// Or returns the value, or fallback when the field failed.
func (r Result[T]) Or(fallback T) T {
	if !r.OK {
		return fallback
	}
	return r.Value
}

// fields is everything the pipeline produced for one wallet.
type fields struct {
	wallet    string
	holdings  Result[[]solana.TokenHolding]
	activity  Result[[]solana.ActivityRecord]
	metadata  Result[[]forensics.Token]
	forensics Result[map[string]forensics.TokenRisk]
	monitor   Result[monitor.Verdict]
	advice    Result[advisor.Advice]
}

// assemble is the only place a Report is built. Every section is present
// whatever combination of fields failed.
func assemble(f fields, placeholderAdvice advisor.Advice) *Report {
	tokens := f.forensics.Or(nil)
	if tokens == nil {
		tokens = map[string]forensics.TokenRisk{}
	}
	verdict := f.monitor.Or(monitor.Placeholder())
	advice := f.advice.Or(placeholderAdvice)

	var markers []string
	for _, m := range [][]string{
		f.holdings.Degraded, f.activity.Degraded, f.metadata.Degraded,
		f.forensics.Degraded, f.monitor.Degraded, f.advice.Degraded,
	} {
		markers = append(markers, m...)
	}

	return &Report{
		Wallet:          f.wallet,
		CombinedSummary: Summary(f.wallet, advice.Rating, advice.RiskScore),
		Detailed: Detailed{
			TokenForensics:     tokens,
			TransactionMonitor: verdict,
			RiskAdvisor:        advice,
		},
		TrustScore:  advice.RiskScore,
		RiskRating:  advice.Rating,
		TotalTokens: len(tokens),
		Degraded:    normalize(markers),
	}
}

// normalize sorts and dedupes markers; the result is never nil.
func normalize(markers []string) []string {
	out := make([]string, 0, len(markers))
	seen := make(map[string]bool, len(markers))
	for _, m := range markers {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
