package forensics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nexus-trading/walletscope/internal/observability"
	"github.com/nexus-trading/walletscope/internal/provider"
	"github.com/nexus-trading/walletscope/internal/risk"
	"github.com/nexus-trading/walletscope/internal/solana"
	"github.com/nexus-trading/walletscope/internal/tracing"
)

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

// HolderSource returns the largest holders of a mint.
type HolderSource interface {
	GetHolderDistribution(ctx context.Context, mint solana.Pubkey) ([]solana.HolderInfo, error)
}

// LiquiditySource returns the pooled liquidity of a mint.
type LiquiditySource interface {
	GetLiquidity(ctx context.Context, mint string) (provider.Liquidity, error)
}

// AuthoritySource returns the mint authority state.
type AuthoritySource interface {
	GetMintAuthority(ctx context.Context, mint solana.Pubkey) (solana.MintAuthority, error)
}

// LockSource returns whether the mint's pool liquidity is locked.
type LockSource interface {
	GetLockStatus(ctx context.Context, mint solana.Pubkey) (solana.LockStatus, error)
}

// Sources groups the feature providers. A nil source degrades its feature.
type Sources struct {
	Holders   HolderSource
	Liquidity LiquiditySource
	Authority AuthoritySource
	Locks     LockSource
}

var errNoSource = errors.New("forensics: source not configured")

// Feature names used in degraded markers.
const (
	FeatureHolders   = "holders"
	FeatureLiquidity = "liquidity"
	FeatureAuthority = "authority"
	FeatureLock      = "lock"

	featureCount = 4
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// AnalyzerConfig configures flag detection and scoring.
type AnalyzerConfig struct {
	ConcentrationFlagPct float64      `yaml:"concentration_flag_pct"` // default: 50
	Buzzwords            []string     `yaml:"buzzwords"`              // default: pump, moon
	MaxConcurrency       int          `yaml:"max_concurrency"`        // default: 4 tokens in flight
	ExplorerBaseURL      string       `yaml:"explorer_base_url"`      // default: https://solscan.io/token/
	Rules                ScoringRules `yaml:"rules"`
}

// DefaultAnalyzerConfig returns production defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		ConcentrationFlagPct: 50,
		Buzzwords:            []string{"pump", "moon"},
		MaxConcurrency:       4,
		ExplorerBaseURL:      "https://solscan.io/token/",
		Rules:                DefaultScoringRules(),
	}
}

// ---------------------------------------------------------------------------
// Analyzer
// ---------------------------------------------------------------------------

// Analyzer derives per-token features and scores them.
type Analyzer struct {
	config  AnalyzerConfig
	sources Sources
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(config AnalyzerConfig, sources Sources) *Analyzer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	return &Analyzer{config: config, sources: sources}
}

// Analyze scores every distinct non-empty mint in tokens. Feature failures
// never abort the batch; they fall back to defaults and are reported as
// degraded markers.
func (a *Analyzer) Analyze(ctx context.Context, tokens []Token) Result {
	unique := make([]Token, 0, len(tokens))
	seen := make(map[solana.Pubkey]bool, len(tokens))
	for _, t := range tokens {
		if t.Mint == "" || seen[t.Mint] {
			continue
		}
		seen[t.Mint] = true
		unique = append(unique, t)
	}

	risks := make([]TokenRisk, len(unique))
	degraded := make([][]string, len(unique))
	sem := make(chan struct{}, a.config.MaxConcurrency)

	var wg sync.WaitGroup
	for i, tok := range unique {
		wg.Add(1)
		go func(i int, tok Token) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			risks[i], degraded[i] = a.AnalyzeToken(ctx, tok)
		}(i, tok)
	}
	wg.Wait()

	result := Result{Tokens: make(map[string]TokenRisk, len(unique))}
	for i, r := range risks {
		result.Tokens[r.Token] = r
		result.Degraded = append(result.Degraded, degraded[i]...)
	}
	sort.Strings(result.Degraded)
	observability.TokensAnalyzed.Add(float64(len(unique)))
	return result
}

// AnalyzeToken gathers features for one token and scores them. The second
// return lists the features that fell back to defaults.
func (a *Analyzer) AnalyzeToken(ctx context.Context, tok Token) (TokenRisk, []string) {
	ctx, span := tracing.StartSpan(ctx, "forensics.token", tracing.Mint(string(tok.Mint)))
	defer span.End()

	features, degraded := a.gatherFeatures(ctx, tok)
	span.SetAttributes(tracing.Count("degraded", len(degraded)))

	score := a.config.Rules.Score(features)
	// The baseline only stands in when no feature could be fetched.
	if len(degraded) == featureCount && tok.BaselineRisk > score {
		score = risk.Clamp(tok.BaselineRisk)
	}

	reason := strings.Join(features.Flags, ", ")
	if reason == "" {
		reason = NoFlagsReason
	}

	flags := features.Flags
	if flags == nil {
		flags = []string{}
	}

	return TokenRisk{
		Token:         string(tok.Mint),
		Name:          tok.Name,
		Symbol:        tok.Symbol,
		RiskScore:     score,
		Reason:        reason,
		Flags:         flags,
		LiquidityUSD:  features.LiquidityUSD,
		TopHolderPct:  roundPct(features.TopHolderPct),
		MintAuthority: features.MintAuthority,
		LPLocked:      features.LPLocked,
		ExplorerURL:   a.config.ExplorerBaseURL + string(tok.Mint),
	}, degraded
}

func (a *Analyzer) gatherFeatures(ctx context.Context, tok Token) (Features, []string) {
	f := Features{
		LiquidityUSD:  decimal.Zero,
		MintAuthority: solana.AuthorityUnknown,
	}

	var (
		mu       sync.Mutex
		degraded []string
		wg       sync.WaitGroup
	)
	degrade := func(feature string, err error) {
		log.Debug().Err(err).Str("mint", string(tok.Mint)).Str("feature", feature).
			Msg("forensics: feature unavailable, using default")
		mu.Lock()
		degraded = append(degraded, "forensics:"+string(tok.Mint)+":"+feature)
		mu.Unlock()
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		if a.sources.Holders == nil {
			degrade(FeatureHolders, errNoSource)
			return
		}
		holders, err := a.sources.Holders.GetHolderDistribution(ctx, tok.Mint)
		if err != nil {
			degrade(FeatureHolders, err)
			return
		}
		f.TopHolderPct = TopHolderPct(holders)
	}()
	go func() {
		defer wg.Done()
		if a.sources.Liquidity == nil {
			degrade(FeatureLiquidity, errNoSource)
			return
		}
		liq, err := a.sources.Liquidity.GetLiquidity(ctx, string(tok.Mint))
		if err != nil {
			degrade(FeatureLiquidity, err)
			return
		}
		f.LiquidityUSD = liq.USD
	}()
	go func() {
		defer wg.Done()
		if a.sources.Authority == nil {
			degrade(FeatureAuthority, errNoSource)
			return
		}
		auth, err := a.sources.Authority.GetMintAuthority(ctx, tok.Mint)
		if err != nil {
			degrade(FeatureAuthority, err)
			return
		}
		f.MintAuthority = auth
	}()
	go func() {
		defer wg.Done()
		if a.sources.Locks == nil {
			degrade(FeatureLock, errNoSource)
			return
		}
		st, err := a.sources.Locks.GetLockStatus(ctx, tok.Mint)
		if err != nil {
			degrade(FeatureLock, err)
			return
		}
		f.LPLocked = st.Locked
	}()
	wg.Wait()

	f.Flags = a.flags(tok, f.TopHolderPct)
	sort.Strings(degraded)
	return f, degraded
}

// flags returns the sorted, unique flag labels for tok.
func (a *Analyzer) flags(tok Token, topHolderPct float64) []string {
	var flags []string
	if topHolderPct > a.config.ConcentrationFlagPct {
		flags = append(flags, FlagHighConcentration)
	}
	if a.hasBuzzword(string(tok.Mint)) || a.hasBuzzword(tok.Name) {
		flags = append(flags, FlagSuspiciousName)
	}
	sort.Strings(flags)
	return flags
}

func (a *Analyzer) hasBuzzword(s string) bool {
	s = strings.ToLower(s)
	for _, w := range a.config.Buzzwords {
		if w != "" && strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// TopHolderPct is the largest holder's share of the summed holder amounts,
// in percent. Zero when there are no holders.
func TopHolderPct(holders []solana.HolderInfo) float64 {
	sum := decimal.Zero
	top := decimal.Zero
	for _, h := range holders {
		sum = sum.Add(h.Amount)
		if h.Amount.GreaterThan(top) {
			top = h.Amount
		}
	}
	if !sum.IsPositive() {
		return 0
	}
	pct, _ := top.Div(sum).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// roundPct rounds a percentage to two decimals for reports.
func roundPct(pct float64) float64 {
	out, _ := decimal.NewFromFloat(pct).Round(2).Float64()
	return out
}
