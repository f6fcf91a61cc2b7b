package solana

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a Solana transaction signature.
type Signature string

var addressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// IsValidAddress reports whether s looks like a base58 public key.
// It does not decode the key or check it is on the curve.
func IsValidAddress(s string) bool {
	return addressRe.MatchString(strings.TrimSpace(s))
}

// ---------------------------------------------------------------------------
// Holdings
// ---------------------------------------------------------------------------

// TokenHolding is one non-empty SPL token account owned by a wallet.
type TokenHolding struct {
	Mint     Pubkey          `json:"mint"`
	Owner    Pubkey          `json:"owner"`
	Amount   decimal.Decimal `json:"amount"` // raw base units
	Decimals uint8           `json:"decimals"`
	UIAmount decimal.Decimal `json:"ui_amount"`
	Symbol   string          `json:"symbol,omitempty"`
	Name     string          `json:"name,omitempty"`
}

// ---------------------------------------------------------------------------
// Activity
// ---------------------------------------------------------------------------

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature Signature `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime int64     `json:"block_time"` // unix seconds, 0 when unknown
	Memo      string    `json:"memo,omitempty"`
	Failed    bool      `json:"failed"`
}

// ActivityRecord is a signature joined with the wallet's SOL balance delta.
type ActivityRecord struct {
	Signature Signature       `json:"signature"`
	Slot      uint64          `json:"slot"`
	Timestamp int64           `json:"timestamp"`
	Memo      string          `json:"memo,omitempty"`
	Failed    bool            `json:"failed"`
	NetChange decimal.Decimal `json:"net_change"` // SOL, post minus pre

	// BalanceUnknown is set when the balance lookup failed and NetChange
	// is a zero placeholder.
	BalanceUnknown bool `json:"balance_unknown,omitempty"`
}

// ---------------------------------------------------------------------------
// Token forensics inputs
// ---------------------------------------------------------------------------

// HolderInfo describes one of a token's largest accounts.
type HolderInfo struct {
	Address Pubkey          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// MintAuthority is the state of a token's mint privilege.
type MintAuthority string

const (
	AuthorityActive    MintAuthority = "active"
	AuthorityRenounced MintAuthority = "renounced"
	AuthorityUnknown   MintAuthority = "unknown"
)

// LockStatus says whether a token's pool liquidity can be pulled.
type LockStatus struct {
	Locked bool   `json:"locked"`
	Reason string `json:"reason,omitempty"` // burned|locker|unlocked|no_pool
}

// Well-known addresses.
const (
	SOLMint  Pubkey = "So11111111111111111111111111111111111111112"
	USDCMint Pubkey = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint Pubkey = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// LamportsPerSOL converts native balances.
var LamportsPerSOL = decimal.NewFromInt(1_000_000_000)
