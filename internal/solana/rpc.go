package solana

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// RPC Client Interface
// ---------------------------------------------------------------------------

// RPCClient is the interface for the Solana reads the analyzer needs.
// Implementations: LiveRPCClient (real Solana), StubRPCClient (testing).
type RPCClient interface {
	// GetTokenHoldings returns the wallet's non-empty SPL token accounts,
	// in the order the node returned them.
	GetTokenHoldings(ctx context.Context, wallet Pubkey) ([]TokenHolding, error)

	// GetSignatures returns up to limit recent signatures, newest first.
	GetSignatures(ctx context.Context, wallet Pubkey, limit int) ([]SignatureInfo, error)

	// GetBalanceChange returns the wallet's SOL delta in a transaction.
	GetBalanceChange(ctx context.Context, sig Signature, wallet Pubkey) (decimal.Decimal, error)

	// GetHolderDistribution returns the largest accounts of a mint.
	GetHolderDistribution(ctx context.Context, mint Pubkey) ([]HolderInfo, error)

	// GetMintAuthority reports whether the mint can still issue supply.
	GetMintAuthority(ctx context.Context, mint Pubkey) (MintAuthority, error)

	// GetTokenSupply returns the raw supply of a mint.
	GetTokenSupply(ctx context.Context, mint Pubkey) (decimal.Decimal, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// RPCConfig configures the Solana RPC client.
type RPCConfig struct {
	Endpoint         string        `yaml:"endpoint"` // e.g. https://mainnet.helius-rpc.com/?api-key=...
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps"`      // requests per second limit
	MaxRateLimitWait time.Duration `yaml:"max_rate_limit_wait"` // longest Retry-After we sleep through
}

// DefaultRPCConfig returns development defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:         "https://api.mainnet-beta.solana.com",
		Timeout:          10 * time.Second,
		MaxRetries:       3,
		RateLimitRPS:     10,
		MaxRateLimitWait: 5 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and development)
// ---------------------------------------------------------------------------

// Stub method names accepted by SetError.
const (
	MethodHoldings      = "holdings"
	MethodSignatures    = "signatures"
	MethodBalanceChange = "balance_change"
	MethodHolders       = "holders"
	MethodAuthority     = "authority"
	MethodSupply        = "supply"
	MethodHealth        = "health"
)

// StubRPCClient is an in-memory RPCClient for tests and --stub runs.
type StubRPCClient struct {
	mu          sync.RWMutex
	holdings    map[Pubkey][]TokenHolding
	signatures  map[Pubkey][]SignatureInfo
	changes     map[Signature]decimal.Decimal
	holders     map[Pubkey][]HolderInfo
	authorities map[Pubkey]MintAuthority
	supplies    map[Pubkey]decimal.Decimal
	errs        map[string]error
	delay       time.Duration
	calls       map[string]int
	failNext    bool
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		holdings:    make(map[Pubkey][]TokenHolding),
		signatures:  make(map[Pubkey][]SignatureInfo),
		changes:     make(map[Signature]decimal.Decimal),
		holders:     make(map[Pubkey][]HolderInfo),
		authorities: make(map[Pubkey]MintAuthority),
		supplies:    make(map[Pubkey]decimal.Decimal),
		errs:        make(map[string]error),
		calls:       make(map[string]int),
	}
}

// SetHoldings registers the token accounts of a wallet.
func (s *StubRPCClient) SetHoldings(wallet Pubkey, h []TokenHolding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[wallet] = h
}

// AddTransaction appends a signature for wallet with its SOL delta.
func (s *StubRPCClient) AddTransaction(wallet Pubkey, info SignatureInfo, change decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[wallet] = append(s.signatures[wallet], info)
	s.changes[info.Signature] = change
}

// AddHolders registers the largest accounts of a mint.
func (s *StubRPCClient) AddHolders(mint Pubkey, holders []HolderInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[mint] = holders
}

// SetMintAuthority registers the authority state of a mint.
func (s *StubRPCClient) SetMintAuthority(mint Pubkey, a MintAuthority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorities[mint] = a
}

// SetSupply registers the raw supply of a mint.
func (s *StubRPCClient) SetSupply(mint Pubkey, supply decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplies[mint] = supply
}

// SetError makes every call of method fail with err until cleared with nil.
func (s *StubRPCClient) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, method)
		return
	}
	s.errs[method] = err
}

// SetDelay makes every call block for d or until its context ends.
func (s *StubRPCClient) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetFailNext makes the next call fail.
func (s *StubRPCClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// Calls returns how many times method was invoked.
func (s *StubRPCClient) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

func (s *StubRPCClient) enter(ctx context.Context, method string) error {
	s.mu.Lock()
	s.calls[method]++
	delay := s.delay
	err := s.errs[method]
	if err == nil && s.failNext {
		s.failNext = false
		err = fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// --- Interface implementation ---

func (s *StubRPCClient) GetTokenHoldings(ctx context.Context, wallet Pubkey) ([]TokenHolding, error) {
	if err := s.enter(ctx, MethodHoldings); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TokenHolding, len(s.holdings[wallet]))
	copy(out, s.holdings[wallet])
	return out, nil
}

func (s *StubRPCClient) GetSignatures(ctx context.Context, wallet Pubkey, limit int) ([]SignatureInfo, error) {
	if err := s.enter(ctx, MethodSignatures); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sigs := s.signatures[wallet]
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	out := make([]SignatureInfo, len(sigs))
	copy(out, sigs)
	return out, nil
}

func (s *StubRPCClient) GetBalanceChange(ctx context.Context, sig Signature, _ Pubkey) (decimal.Decimal, error) {
	if err := s.enter(ctx, MethodBalanceChange); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes[sig], nil
}

func (s *StubRPCClient) GetHolderDistribution(ctx context.Context, mint Pubkey) ([]HolderInfo, error) {
	if err := s.enter(ctx, MethodHolders); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holders[mint], nil
}

func (s *StubRPCClient) GetMintAuthority(ctx context.Context, mint Pubkey) (MintAuthority, error) {
	if err := s.enter(ctx, MethodAuthority); err != nil {
		return AuthorityUnknown, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.authorities[mint]; ok {
		return a, nil
	}
	return AuthorityUnknown, nil
}

func (s *StubRPCClient) GetTokenSupply(ctx context.Context, mint Pubkey) (decimal.Decimal, error) {
	if err := s.enter(ctx, MethodSupply); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	supply, ok := s.supplies[mint]
	if !ok {
		return decimal.Zero, fmt.Errorf("stub: mint %s not found", mint)
	}
	return supply, nil
}

func (s *StubRPCClient) Health(ctx context.Context) error {
	return s.enter(ctx, MethodHealth)
}
