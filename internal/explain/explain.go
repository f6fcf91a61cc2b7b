// Package explain turns specialist results into short trace sentences.
// Every function here is pure.
package explain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexus-trading/walletscope/internal/advisor"
	"github.com/nexus-trading/walletscope/internal/forensics"
	"github.com/nexus-trading/walletscope/internal/monitor"
	"github.com/nexus-trading/walletscope/internal/risk"
)

// Specialist identifies which analyzer produced a result.
type Specialist int

const (
	TransactionMonitor Specialist = iota + 1
	TokenForensics
	RiskAdvisor
)

// NoTrace is returned for names that are not a known specialist.
const NoTrace = "No additional trace available."

var specialistNames = map[Specialist]string{
	TransactionMonitor: "transaction_monitor",
	TokenForensics:     "token_forensics",
	RiskAdvisor:        "risk_advisor",
}

func (s Specialist) String() string {
	if n, ok := specialistNames[s]; ok {
		return n
	}
	return fmt.Sprintf("specialist(%d)", int(s))
}

// Specialists lists every specialist in a stable order.
func Specialists() []Specialist {
	return []Specialist{TransactionMonitor, TokenForensics, RiskAdvisor}
}

// ParseSpecialist maps a wire name to its Specialist.
func ParseSpecialist(name string) (Specialist, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range specialistNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("explain: unknown specialist %q", name)
}

// Payload carries the result fields the templates reference. A nil
// RiskScore means the field was absent.
type Payload struct {
	Suspicious bool
	RiskScore  *float64
	Reason     string
}

// FromVerdict builds the payload of a transaction monitor result.
func FromVerdict(v monitor.Verdict) Payload {
	return Payload{Suspicious: v.Suspicious, Reason: v.Summary}
}

// FromTokenRisk builds the payload of a token forensics result.
func FromTokenRisk(t forensics.TokenRisk) Payload {
	score := float64(t.RiskScore)
	return Payload{RiskScore: &score, Reason: t.Reason}
}

// FromAdvice builds the payload of a risk advisor result.
func FromAdvice(a advisor.Advice) Payload {
	score := float64(a.RiskScore)
	return Payload{RiskScore: &score, Reason: a.Reason}
}

// Explain composes the trace sentence for kind using the default tiers.
func Explain(kind Specialist, p Payload) string {
	return ExplainWith(risk.DefaultThresholds(), kind, p)
}

// ExplainWith composes the trace sentence for kind; t decides when a token
// score reads as high risk.
func ExplainWith(t risk.Thresholds, kind Specialist, p Payload) string {
	switch kind {
	case TransactionMonitor:
		if p.Suspicious {
			return "Unusual transaction volume detected. Large transfer flagged."
		}
		return "No suspicious transaction patterns found in recent history."
	case TokenForensics:
		if p.RiskScore != nil && t.AboveHigh(*p.RiskScore) {
			return "Token shows high risk: high holder concentration, low liquidity, and/or suspicious metadata."
		}
		return "Token passes most safety checks."
	case RiskAdvisor:
		score := "?"
		if p.RiskScore != nil {
			score = strconv.FormatFloat(*p.RiskScore, 'f', -1, 64)
		}
		return fmt.Sprintf("Overall risk score: %s. %s", score, p.Reason)
	}
	return NoTrace
}

// ExplainNamed is the string-keyed entry point used by the API. Fields
// follow the wire names: suspicious, risk_score, risk_reason.
func ExplainNamed(name string, fields map[string]any) string {
	return ExplainNamedWith(risk.DefaultThresholds(), name, fields)
}

// ExplainNamedWith is ExplainNamed with explicit tiers.
func ExplainNamedWith(t risk.Thresholds, name string, fields map[string]any) string {
	kind, err := ParseSpecialist(name)
	if err != nil {
		return NoTrace
	}
	return ExplainWith(t, kind, PayloadFromFields(fields))
}

// PayloadFromFields reads a loosely typed result object. Unparseable
// values count as absent.
func PayloadFromFields(fields map[string]any) Payload {
	var p Payload
	p.Suspicious = truthy(fields["suspicious"])
	if score, ok := number(fields["risk_score"]); ok {
		p.RiskScore = &score
	}
	if r, ok := fields["risk_reason"].(string); ok {
		p.Reason = r
	}
	return p
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case nil:
		return false
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Confidence
// ---------------------------------------------------------------------------

var (
	certainWords = []string{"likely", "probable", "almost certainly"}
	hedgeWords   = []string{"maybe", "possibly", "unclear"}
)

// Confidence scores how assertive a trace reads.
func Confidence(text string) float64 {
	lower := strings.ToLower(text)
	if containsAny(lower, certainWords) {
		return 0.9
	}
	if containsAny(lower, hedgeWords) {
		return 0.5
	}
	if len(text) > 200 {
		return 0.7
	}
	return 0.8
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
