package solana

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 100
)

// ClampActivityLimit bounds a requested history length to 1..100,
// substituting the default for non-positive values.
func ClampActivityLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultActivityLimit
	case limit > MaxActivityLimit:
		return MaxActivityLimit
	default:
		return limit
	}
}

// ActivityReader builds a wallet's activity timeline from signatures and
// per-transaction balance deltas.
type ActivityReader struct {
	rpc         RPCClient
	concurrency int
}

// NewActivityReader creates a reader issuing at most concurrency
// getTransaction calls at once.
func NewActivityReader(rpc RPCClient, concurrency int) *ActivityReader {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ActivityReader{rpc: rpc, concurrency: concurrency}
}

// GetActivity returns up to limit records, newest first. Failing to list
// signatures is an error; a failed balance lookup leaves that record's
// NetChange at zero and marks it BalanceUnknown.
func (r *ActivityReader) GetActivity(ctx context.Context, wallet Pubkey, limit int) ([]ActivityRecord, error) {
	sigs, err := r.rpc.GetSignatures(ctx, wallet, ClampActivityLimit(limit))
	if err != nil {
		return nil, err
	}

	records := make([]ActivityRecord, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, s := range sigs {
		records[i] = ActivityRecord{
			Signature: s.Signature,
			Slot:      s.Slot,
			Timestamp: s.BlockTime,
			Memo:      s.Memo,
			Failed:    s.Failed,
			NetChange: decimal.Zero,
		}
		if s.Failed {
			continue
		}
		i, sig := i, s.Signature
		g.Go(func() error {
			change, err := r.rpc.GetBalanceChange(gctx, sig, wallet)
			if err != nil {
				log.Debug().Err(err).Str("signature", string(sig)).Msg("activity: balance change unavailable")
				records[i].BalanceUnknown = true
				return nil
			}
			records[i].NetChange = change
			return nil
		})
	}
	_ = g.Wait()

	return records, nil
}
