package forensics

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/walletscope/internal/provider"
	"github.com/nexus-trading/walletscope/internal/solana"
)

type fakeLiquidity map[string]decimal.Decimal

func (f fakeLiquidity) GetLiquidity(_ context.Context, mint string) (provider.Liquidity, error) {
	if mint == "LiqDown" {
		return provider.Liquidity{}, provider.RateLimited("raydium.pools", 0)
	}
	return provider.Liquidity{USD: f[mint]}, nil
}

type fakeLocks map[solana.Pubkey]bool

func (f fakeLocks) GetLockStatus(_ context.Context, mint solana.Pubkey) (solana.LockStatus, error) {
	return solana.LockStatus{Locked: f[mint]}, nil
}

func newTestAnalyzer(stub *solana.StubRPCClient, liq fakeLiquidity, locks fakeLocks) *Analyzer {
	return NewAnalyzer(DefaultAnalyzerConfig(), Sources{
		Holders:   stub,
		Liquidity: liq,
		Authority: stub,
		Locks:     locks,
	})
}

func holders(amounts ...int64) []solana.HolderInfo {
	out := make([]solana.HolderInfo, len(amounts))
	for i, a := range amounts {
		out[i] = solana.HolderInfo{Address: solana.Pubkey("h"), Amount: decimal.NewFromInt(a)}
	}
	return out
}

func TestScoringRules_Additive(t *testing.T) {
	rules := DefaultScoringRules()

	tests := []struct {
		name string
		f    Features
		want int
	}{
		{"healthy", Features{TopHolderPct: 10, LiquidityUSD: decimal.NewFromInt(50000), MintAuthority: solana.AuthorityActive, LPLocked: true}, 0},
		{"concentration only", Features{TopHolderPct: 41, LiquidityUSD: decimal.NewFromInt(50000), LPLocked: true}, 40},
		{"concentration boundary", Features{TopHolderPct: 40, LiquidityUSD: decimal.NewFromInt(50000), LPLocked: true}, 0},
		{"low liquidity", Features{LiquidityUSD: decimal.NewFromInt(999), LPLocked: true}, 30},
		{"liquidity boundary", Features{LiquidityUSD: decimal.NewFromInt(1000), LPLocked: true}, 0},
		{"renounced", Features{LiquidityUSD: decimal.NewFromInt(5000), MintAuthority: solana.AuthorityRenounced, LPLocked: true}, 10},
		{"unlocked", Features{LiquidityUSD: decimal.NewFromInt(5000)}, 15},
		{"flag", Features{LiquidityUSD: decimal.NewFromInt(5000), LPLocked: true, Flags: []string{FlagSuspiciousName}}, 20},
		{"unscored flag", Features{LiquidityUSD: decimal.NewFromInt(5000), LPLocked: true, Flags: []string{"other"}}, 0},
		{"everything clamps", Features{TopHolderPct: 90, LiquidityUSD: decimal.Zero, MintAuthority: solana.AuthorityRenounced,
			Flags: []string{FlagHighConcentration, FlagSuspiciousName}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.Score(tt.f))
		})
	}
}

func TestTopHolderPct(t *testing.T) {
	assert.Equal(t, 0.0, TopHolderPct(nil))
	assert.Equal(t, 0.0, TopHolderPct(holders(0, 0)))
	assert.Equal(t, 90.0, TopHolderPct(holders(90, 10)))
	assert.InDelta(t, 33.3333, TopHolderPct(holders(1, 1, 1)), 0.0001)
	assert.Greater(t, TopHolderPct(holders(400040, 599960)), 40.0)
}

func TestAnalyze_WorstCaseTokenScoresHundred(t *testing.T) {
	stub := solana.NewStubRPCClient()
	stub.AddHolders("MintMoon1", holders(900, 100))
	stub.SetMintAuthority("MintMoon1", solana.AuthorityRenounced)

	a := newTestAnalyzer(stub, fakeLiquidity{}, fakeLocks{})
	res := a.Analyze(context.Background(), []Token{{Mint: "MintMoon1", Name: "Moon Rocket"}})

	require.Len(t, res.Tokens, 1)
	tr := res.Tokens["MintMoon1"]
	assert.Equal(t, 100, tr.RiskScore)
	assert.Equal(t, "High holder concentration, Suspicious name", tr.Reason)
	assert.Equal(t, 90.0, tr.TopHolderPct)
	assert.Equal(t, solana.AuthorityRenounced, tr.MintAuthority)
	assert.False(t, tr.LPLocked)
	assert.Equal(t, "https://solscan.io/token/MintMoon1", tr.ExplorerURL)
	assert.Empty(t, res.Degraded)
}

func TestAnalyze_SafeToken(t *testing.T) {
	stub := solana.NewStubRPCClient()
	stub.AddHolders("MintSafe", holders(10, 10, 10, 10, 10))
	stub.SetMintAuthority("MintSafe", solana.AuthorityActive)

	a := newTestAnalyzer(stub, fakeLiquidity{"MintSafe": decimal.NewFromInt(250000)}, fakeLocks{"MintSafe": true})
	res := a.Analyze(context.Background(), []Token{{Mint: "MintSafe", Name: "Stable"}})

	tr := res.Tokens["MintSafe"]
	assert.Equal(t, 0, tr.RiskScore)
	assert.Equal(t, NoFlagsReason, tr.Reason)
	assert.Equal(t, []string{}, tr.Flags)
	assert.True(t, tr.LiquidityUSD.Equal(decimal.NewFromInt(250000)))
}

func TestAnalyze_FailuresDegradeToDefaults(t *testing.T) {
	stub := solana.NewStubRPCClient()
	stub.SetError(solana.MethodHolders, errors.New("rpc down"))
	stub.SetError(solana.MethodAuthority, errors.New("rpc down"))

	a := NewAnalyzer(DefaultAnalyzerConfig(), Sources{
		Holders:   stub,
		Liquidity: fakeLiquidity{},
		Authority: stub,
	})
	res := a.Analyze(context.Background(), []Token{{Mint: "LiqDown"}})

	tr := res.Tokens["LiqDown"]
	// low liquidity + unlocked
	assert.Equal(t, 45, tr.RiskScore)
	assert.Equal(t, solana.AuthorityUnknown, tr.MintAuthority)
	assert.Equal(t, 0.0, tr.TopHolderPct)
	assert.Equal(t, []string{
		"forensics:LiqDown:authority",
		"forensics:LiqDown:holders",
		"forensics:LiqDown:liquidity",
		"forensics:LiqDown:lock",
	}, res.Degraded)
}

func TestAnalyze_BaselineIgnoredWhenFeaturesFetched(t *testing.T) {
	stub := solana.NewStubRPCClient()
	stub.AddHolders("MintX", holders(25, 25, 25, 25))
	stub.SetMintAuthority("MintX", solana.AuthorityActive)
	a := newTestAnalyzer(stub, fakeLiquidity{}, fakeLocks{})

	res := a.Analyze(context.Background(), []Token{{
		Mint:         "MintX",
		Name:         "Unknown Token",
		BaselineRisk: 50,
	}})

	tr := res.Tokens["MintX"]
	// low liquidity + unlocked
	assert.Equal(t, 45, tr.RiskScore)
	assert.Equal(t, NoFlagsReason, tr.Reason)
	assert.Equal(t, 25.0, tr.TopHolderPct)
	assert.Empty(t, res.Degraded)
}

func TestAnalyze_BaselineWhenEveryFeatureDegraded(t *testing.T) {
	stub := solana.NewStubRPCClient()
	stub.SetError(solana.MethodHolders, errors.New("rpc down"))
	stub.SetError(solana.MethodAuthority, errors.New("rpc down"))
	a := NewAnalyzer(DefaultAnalyzerConfig(), Sources{Holders: stub, Authority: stub})

	res := a.Analyze(context.Background(), []Token{{Mint: "LiqDown", BaselineRisk: 50}})

	tr := res.Tokens["LiqDown"]
	assert.Equal(t, 50, tr.RiskScore)
	assert.Equal(t, NoFlagsReason, tr.Reason)
	assert.Len(t, res.Degraded, 4)
}

func TestAnalyze_ConcentrationComparedBeforeRounding(t *testing.T) {
	stub := solana.NewStubRPCClient()
	// 400040 / 1000000 = 40.004%
	stub.AddHolders("MintEdge", holders(400040, 599960))
	stub.SetMintAuthority("MintEdge", solana.AuthorityActive)
	a := newTestAnalyzer(stub, fakeLiquidity{"MintEdge": decimal.NewFromInt(50000)}, fakeLocks{"MintEdge": true})

	tr := a.Analyze(context.Background(), []Token{{Mint: "MintEdge"}}).Tokens["MintEdge"]
	assert.Equal(t, 40, tr.RiskScore)
	assert.Equal(t, 40.0, tr.TopHolderPct)
}

func TestAnalyze_DeduplicatesAndSkipsEmpty(t *testing.T) {
	stub := solana.NewStubRPCClient()
	a := newTestAnalyzer(stub, fakeLiquidity{}, fakeLocks{})

	res := a.Analyze(context.Background(), []Token{
		{Mint: "MintA"}, {Mint: ""}, {Mint: "MintA"}, {Mint: "MintB"},
	})
	assert.Len(t, res.Tokens, 2)
	assert.Equal(t, 2, stub.Calls(solana.MethodHolders))
}

func TestAnalyze_BuzzwordInAddress(t *testing.T) {
	stub := solana.NewStubRPCClient()
	a := newTestAnalyzer(stub, fakeLiquidity{"abcPUMPxyz": decimal.NewFromInt(5000)}, fakeLocks{"abcPUMPxyz": true})

	tr := a.Analyze(context.Background(), []Token{{Mint: "abcPUMPxyz"}}).Tokens["abcPUMPxyz"]
	assert.Equal(t, []string{FlagSuspiciousName}, tr.Flags)
	assert.Equal(t, 20, tr.RiskScore)
}

func TestAnalyze_ScoresWithinRange(t *testing.T) {
	stub := solana.NewStubRPCClient()
	a := newTestAnalyzer(stub, fakeLiquidity{}, fakeLocks{})

	tokens := []Token{{Mint: "a"}, {Mint: "moon", BaselineRisk: 250}, {Mint: "c", BaselineRisk: -5}}
	for _, score := range a.Analyze(context.Background(), tokens).Scores() {
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}
}
