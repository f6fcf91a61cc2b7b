package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/nexus-trading/walletscope/internal/solana"
)

func rec(sig string, change int64) solana.ActivityRecord {
	return solana.ActivityRecord{Signature: solana.Signature(sig), NetChange: decimal.NewFromInt(change)}
}

func TestCheck_NoHitCountsEverything(t *testing.T) {
	m := New(DefaultConfig())
	records := []solana.ActivityRecord{rec("a", -5), rec("b", 300), rec("c", -100)}

	v := m.Check(records)
	assert.False(t, v.Suspicious)
	assert.Equal(t, len(records), v.CheckedTxs)
	assert.Equal(t, NoActivitySummary, v.Summary)
	assert.Nil(t, v.Change)
}

func TestCheck_FirstHitWins(t *testing.T) {
	m := New(DefaultConfig())
	records := []solana.ActivityRecord{
		rec("a", -1), rec("b", 50), rec("sig-2", -250), rec("d", -9000),
	}

	v := m.Check(records)
	assert.True(t, v.Suspicious)
	assert.Equal(t, "sig-2", v.Signature)
	assert.Equal(t, 3, v.CheckedTxs)
	assert.Equal(t, "Large outgoing transfer: -250 SOL in tx sig-2", v.Summary)
	assert.True(t, v.Change.Equal(decimal.NewFromInt(-250)))
}

func TestCheck_Empty(t *testing.T) {
	v := New(DefaultConfig()).Check(nil)
	assert.False(t, v.Suspicious)
	assert.Equal(t, 0, v.CheckedTxs)
	assert.Equal(t, Placeholder().Summary, v.Summary)
}

func TestCheck_ConfiguredThreshold(t *testing.T) {
	m := New(Config{LargeOutflowSOL: 10})
	v := m.Check([]solana.ActivityRecord{rec("a", -11)})
	assert.True(t, v.Suspicious)

	// zero threshold falls back to the default
	m = New(Config{})
	v = m.Check([]solana.ActivityRecord{rec("a", -11)})
	assert.False(t, v.Suspicious)
}

func TestCheck_FractionalAmounts(t *testing.T) {
	m := New(DefaultConfig())
	v := m.Check([]solana.ActivityRecord{{
		Signature: "frac",
		NetChange: decimal.RequireFromString("-100.000000001"),
	}})
	assert.True(t, v.Suspicious)
	assert.Contains(t, v.Summary, "-100.000000001 SOL")
}
