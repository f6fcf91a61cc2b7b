package solana

import (
	"context"
	"fmt"
)

// PoolLocator finds the LP mint of a token's main pool. An empty string
// with a nil error means the token has no pool.
type PoolLocator interface {
	LPMintFor(ctx context.Context, mint string) (string, error)
}

// LockChecker decides whether a token's pool liquidity is locked: the LP
// supply has been burned to zero, or the largest LP account belongs to a
// known locker.
type LockChecker struct {
	rpc     RPCClient
	pools   PoolLocator
	lockers map[Pubkey]bool
}

// NewLockChecker creates a checker. lockerAccounts are LP token accounts
// controlled by lock programs.
func NewLockChecker(rpc RPCClient, pools PoolLocator, lockerAccounts []string) *LockChecker {
	lockers := make(map[Pubkey]bool, len(lockerAccounts))
	for _, a := range lockerAccounts {
		lockers[Pubkey(a)] = true
	}
	return &LockChecker{rpc: rpc, pools: pools, lockers: lockers}
}

// GetLockStatus returns the lock state of mint's pool.
func (l *LockChecker) GetLockStatus(ctx context.Context, mint Pubkey) (LockStatus, error) {
	lpMint, err := l.pools.LPMintFor(ctx, string(mint))
	if err != nil {
		return LockStatus{}, fmt.Errorf("lock: find pool for %s: %w", mint, err)
	}
	if lpMint == "" {
		return LockStatus{Locked: false, Reason: "no_pool"}, nil
	}

	supply, err := l.rpc.GetTokenSupply(ctx, Pubkey(lpMint))
	if err != nil {
		return LockStatus{}, fmt.Errorf("lock: lp supply for %s: %w", mint, err)
	}
	if supply.IsZero() {
		return LockStatus{Locked: true, Reason: "burned"}, nil
	}

	if len(l.lockers) == 0 {
		return LockStatus{Locked: false, Reason: "unlocked"}, nil
	}

	holders, err := l.rpc.GetHolderDistribution(ctx, Pubkey(lpMint))
	if err != nil {
		return LockStatus{}, fmt.Errorf("lock: lp holders for %s: %w", mint, err)
	}
	if len(holders) > 0 && l.lockers[holders[0].Address] {
		return LockStatus{Locked: true, Reason: "locker"}, nil
	}
	return LockStatus{Locked: false, Reason: "unlocked"}, nil
}
