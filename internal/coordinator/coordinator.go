// Package coordinator runs the wallet analysis pipeline: fetch holdings and
// activity, resolve token metadata, run the specialists, aggregate, and
// assemble a report that is well-formed under any provider failure.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nexus-trading/walletscope/internal/advisor"
	"github.com/nexus-trading/walletscope/internal/forensics"
	"github.com/nexus-trading/walletscope/internal/monitor"
	"github.com/nexus-trading/walletscope/internal/observability"
	"github.com/nexus-trading/walletscope/internal/provider"
	"github.com/nexus-trading/walletscope/internal/solana"
	"github.com/nexus-trading/walletscope/internal/tracing"
)

var (
	// ErrInvalidInput is returned when the wallet address fails validation.
	ErrInvalidInput = errors.New("invalid wallet address")
	// ErrExhausted is returned when the caller's context ended before any
	// input could be fetched.
	ErrExhausted = errors.New("analysis exhausted before any phase completed")
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// HoldingsProvider lists a wallet's token balances.
type HoldingsProvider interface {
	GetTokenHoldings(ctx context.Context, wallet solana.Pubkey) ([]solana.TokenHolding, error)
}

// ActivityProvider lists a wallet's recent transactions, newest first.
type ActivityProvider interface {
	GetActivity(ctx context.Context, wallet solana.Pubkey, limit int) ([]solana.ActivityRecord, error)
}

// MetadataProvider resolves token display metadata.
type MetadataProvider interface {
	GetTokenMetadata(ctx context.Context, mint string) (provider.TokenMetadata, error)
}

// Sink receives every assembled report. Errors are logged and never change
// the report returned to the caller.
type Sink interface {
	Record(ctx context.Context, report *Report) error
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config bounds one analysis.
type Config struct {
	MaxTokens        int           `yaml:"max_tokens"`         // default: 5 distinct mints
	ActivityLimit    int           `yaml:"activity_limit"`     // default: 50 records
	RequestTimeout   time.Duration `yaml:"request_timeout"`    // default: 30s
	DefaultTokenRisk int           `yaml:"default_token_risk"` // default: 50, applied when metadata fails
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:        5,
		ActivityLimit:    solana.DefaultActivityLimit,
		RequestTimeout:   30 * time.Second,
		DefaultTokenRisk: 50,
	}
}

// Deps are the coordinator's collaborators. A nil provider or specialist
// degrades its section; a nil Advisor gets the default configuration.
type Deps struct {
	Holdings  HoldingsProvider
	Activity  ActivityProvider
	Metadata  MetadataProvider
	Forensics *forensics.Analyzer
	Monitor   *monitor.Monitor
	Advisor   *advisor.Advisor
	Sinks     []Sink
}

// ---------------------------------------------------------------------------
// Coordinator
// ---------------------------------------------------------------------------

// Coordinator is safe for concurrent use; it keeps no per-request state.
type Coordinator struct {
	config Config
	deps   Deps
}

// New creates a coordinator.
func New(config Config, deps Deps) *Coordinator {
	def := DefaultConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.ActivityLimit <= 0 {
		config.ActivityLimit = def.ActivityLimit
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if deps.Advisor == nil {
		deps.Advisor = advisor.New(advisor.DefaultConfig())
	}
	return &Coordinator{config: config, deps: deps}
}

// AnalyzeWallet runs the full pipeline for wallet. The only errors are
// ErrInvalidInput and ErrExhausted; every provider failure is absorbed and
// listed in Report.Degraded.
func (c *Coordinator) AnalyzeWallet(ctx context.Context, wallet string) (*Report, error) {
	wallet = strings.TrimSpace(wallet)
	if !solana.IsValidAddress(wallet) {
		observability.AnalysisRejectedTotal.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidInput, wallet)
	}

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "coordinator.AnalyzeWallet", tracing.Wallet(wallet))
	defer span.End()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	f := fields{wallet: wallet}
	pk := solana.Pubkey(wallet)

	// Fetch phase.
	f.holdings, f.activity = c.fetch(reqCtx, pk)
	if !f.holdings.OK && !f.activity.OK && ctx.Err() != nil {
		observability.AnalysisRejectedTotal.WithLabelValues("exhausted").Inc()
		span.RecordError(ctx.Err())
		return nil, fmt.Errorf("%w: %v", ErrExhausted, ctx.Err())
	}

	// Metadata phase.
	f.metadata = c.resolveMetadata(reqCtx, f.holdings.Or(nil))

	// Analysis phase.
	f.forensics, f.monitor = c.analyze(reqCtx, f.metadata.Value, f.activity.Or(nil))

	// Aggregation phase.
	f.advice = c.aggregate(f.forensics, f.monitor)

	report := assemble(f, c.deps.Advisor.Advise(nil, nil))
	c.record(ctx, report, time.Since(start))
	span.SetAttributes(
		tracing.Count("tokens", report.TotalTokens),
		tracing.Count("degraded", len(report.Degraded)),
	)
	return report, nil
}

func (c *Coordinator) fetch(ctx context.Context, wallet solana.Pubkey) (Result[[]solana.TokenHolding], Result[[]solana.ActivityRecord]) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.fetch")
	defer span.End()

	var (
		holdings Result[[]solana.TokenHolding]
		activity Result[[]solana.ActivityRecord]
		wg       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if c.deps.Holdings == nil {
			holdings = Failed[[]solana.TokenHolding]("holdings")
			return
		}
		h, err := c.deps.Holdings.GetTokenHoldings(ctx, wallet)
		if err != nil {
			log.Warn().Err(err).Str("wallet", string(wallet)).Str("kind", provider.KindOf(err).String()).
				Msg("coordinator: holdings fetch failed, continuing with no tokens")
			holdings = Failed[[]solana.TokenHolding]("holdings")
			return
		}
		holdings = Ok(h)
	}()
	go func() {
		defer wg.Done()
		if c.deps.Activity == nil {
			activity = Failed[[]solana.ActivityRecord]("activity")
			return
		}
		a, err := c.deps.Activity.GetActivity(ctx, wallet, c.config.ActivityLimit)
		if err != nil {
			log.Warn().Err(err).Str("wallet", string(wallet)).Str("kind", provider.KindOf(err).String()).
				Msg("coordinator: activity fetch failed, continuing with no activity")
			activity = Failed[[]solana.ActivityRecord]("activity")
			return
		}
		activity = Ok(a, unpricedMarkers(a)...)
	}()
	wg.Wait()

	return holdings, activity
}

// unpricedMarkers names the records whose balance change could not be
// fetched, so a zero NetChange is not mistaken for a quiet wallet.
func unpricedMarkers(records []solana.ActivityRecord) []string {
	var markers []string
	for _, r := range records {
		if r.BalanceUnknown {
			markers = append(markers, "activity:balance:"+string(r.Signature))
		}
	}
	if len(markers) > 0 {
		log.Warn().Int("records", len(markers)).Msg("coordinator: balance changes unavailable for some activity")
	}
	return markers
}

// selectMints returns the first MaxTokens distinct non-empty mints in
// holdings order.
func (c *Coordinator) selectMints(holdings []solana.TokenHolding) []solana.TokenHolding {
	out := make([]solana.TokenHolding, 0, c.config.MaxTokens)
	seen := make(map[solana.Pubkey]bool)
	for _, h := range holdings {
		if len(out) == c.config.MaxTokens {
			break
		}
		if h.Mint == "" || seen[h.Mint] {
			continue
		}
		seen[h.Mint] = true
		out = append(out, h)
	}
	return out
}

func (c *Coordinator) resolveMetadata(ctx context.Context, holdings []solana.TokenHolding) Result[[]forensics.Token] {
	selected := c.selectMints(holdings)
	if len(selected) == 0 {
		return Ok([]forensics.Token{})
	}

	ctx, span := tracing.StartSpan(ctx, "coordinator.metadata", tracing.Count("tokens", len(selected)))
	defer span.End()

	tokens := make([]forensics.Token, len(selected))
	failed := make([]bool, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxTokens)
	for i, h := range selected {
		i, h := i, h
		g.Go(func() error {
			tok, ok := c.tokenFor(gctx, h)
			tokens[i], failed[i] = tok, !ok
			return nil
		})
	}
	_ = g.Wait()

	var markers []string
	for i, bad := range failed {
		if bad {
			markers = append(markers, "metadata:"+string(selected[i].Mint))
		}
	}
	return Ok(tokens, markers...)
}

// tokenFor resolves one token's metadata; false means the default record
// was substituted.
func (c *Coordinator) tokenFor(ctx context.Context, h solana.TokenHolding) (forensics.Token, bool) {
	tok := forensics.Token{Mint: h.Mint, Name: h.Name, Symbol: h.Symbol}

	var (
		meta provider.TokenMetadata
		err  = errors.New("metadata provider not configured")
	)
	if c.deps.Metadata != nil {
		meta, err = c.deps.Metadata.GetTokenMetadata(ctx, string(h.Mint))
	}
	if err != nil {
		log.Debug().Err(err).Str("mint", string(h.Mint)).Msg("coordinator: metadata lookup failed, using default record")
		tok.Name = provider.UnknownTokenName
		tok.Symbol = provider.UnknownTokenSymbol
		tok.BaselineRisk = c.config.DefaultTokenRisk
		return tok, false
	}
	if meta.Name != "" {
		tok.Name = meta.Name
	}
	if meta.Symbol != "" {
		tok.Symbol = meta.Symbol
	}
	return tok, true
}

func (c *Coordinator) analyze(ctx context.Context, tokens []forensics.Token, activity []solana.ActivityRecord) (Result[map[string]forensics.TokenRisk], Result[monitor.Verdict]) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.analyze")
	defer span.End()

	var (
		tokenRes   Result[map[string]forensics.TokenRisk]
		monitorRes Result[monitor.Verdict]
	)

	var g errgroup.Group
	g.Go(func() error {
		if c.deps.Forensics == nil {
			tokenRes = Failed[map[string]forensics.TokenRisk]("token_forensics")
			return nil
		}
		res := c.deps.Forensics.Analyze(ctx, tokens)
		tokenRes = Ok(res.Tokens, res.Degraded...)
		return nil
	})
	g.Go(func() error {
		if c.deps.Monitor == nil {
			monitorRes = Failed[monitor.Verdict]("transaction_monitor")
			return nil
		}
		monitorRes = Ok(c.deps.Monitor.Check(activity))
		return nil
	})
	_ = g.Wait()

	return tokenRes, monitorRes
}

func (c *Coordinator) aggregate(tokens Result[map[string]forensics.TokenRisk], verdict Result[monitor.Verdict]) Result[advisor.Advice] {
	scores := make(map[string]int, len(tokens.Value))
	for mint, t := range tokens.Or(nil) {
		scores[mint] = t.RiskScore
	}
	v := verdict.Or(monitor.Placeholder())
	return Ok(c.deps.Advisor.Advise(scores, &v))
}

// record updates metrics and hands the report to the sinks. Sinks run on a
// context that outlives the request deadline but not the caller.
func (c *Coordinator) record(ctx context.Context, report *Report, elapsed time.Duration) {
	observability.AnalysesTotal.WithLabelValues(string(report.RiskRating)).Inc()
	observability.AnalysisDuration.Observe(elapsed.Seconds())
	for _, m := range report.Degraded {
		section, _, _ := strings.Cut(m, ":")
		observability.DegradedTotal.WithLabelValues(section).Inc()
	}
	if report.Detailed.TransactionMonitor.Suspicious {
		observability.SuspiciousWalletsTotal.Inc()
	}

	log.Info().
		Str("wallet", report.Wallet).
		Int("score", report.TrustScore).
		Str("rating", string(report.RiskRating)).
		Int("tokens", report.TotalTokens).
		Int("degraded", len(report.Degraded)).
		Dur("elapsed", elapsed).
		Msg("coordinator: analysis complete")

	for _, s := range c.deps.Sinks {
		if err := s.Record(ctx, report); err != nil {
			log.Warn().Err(err).Str("wallet", report.Wallet).Msg("coordinator: sink failed")
		}
	}
}
