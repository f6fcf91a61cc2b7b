package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Pool is one AMM pool from the Raydium liquidity list.
type Pool struct {
	ID        string  `json:"id"`
	BaseMint  string  `json:"baseMint"`
	QuoteMint string  `json:"quoteMint"`
	LPMint    string  `json:"lpMint"`
	Liquidity float64 `json:"liquidity"`
}

// Liquidity is the depth of the pool a token trades in.
type Liquidity struct {
	USD     decimal.Decimal `json:"liquidity_usd"`
	PoolRef string          `json:"pool_ref,omitempty"`
	LPMint  string          `json:"lp_mint,omitempty"`
}

// RaydiumConfig configures the Raydium pool-list source.
type RaydiumConfig struct {
	PoolListURL string        `yaml:"pool_list_url"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// DefaultRaydiumConfig returns production defaults.
func DefaultRaydiumConfig() RaydiumConfig {
	return RaydiumConfig{
		PoolListURL: "https://api.raydium.io/v2/sdk/liquidity/mainnet.json",
		Timeout:     30 * time.Second,
		CacheTTL:    5 * time.Minute,
	}
}

type poolListDoc struct {
	Official []Pool `json:"official"`
}

// RaydiumClient answers liquidity and LP-mint questions from the official
// Raydium pool list, which is downloaded once per CacheTTL and indexed by mint.
type RaydiumClient struct {
	cfg  RaydiumConfig
	http HTTPDoer

	group singleflight.Group

	mu       sync.RWMutex
	byMint   map[string]Pool
	loadedAt time.Time
	now      func() time.Time
}

// NewRaydiumClient creates a Raydium client.
func NewRaydiumClient(cfg RaydiumConfig, httpClient HTTPDoer) *RaydiumClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RaydiumClient{cfg: cfg, http: httpClient, now: time.Now}
}

// FindPool returns the first official pool where mint is base or quote.
// ok is false when the token has no pool.
func (c *RaydiumClient) FindPool(ctx context.Context, mint string) (Pool, bool, error) {
	idx, err := c.pools(ctx)
	if err != nil {
		return Pool{}, false, err
	}
	p, ok := idx[mint]
	return p, ok, nil
}

// GetLiquidity returns the USD depth of the token's pool, zero when none exists.
func (c *RaydiumClient) GetLiquidity(ctx context.Context, mint string) (Liquidity, error) {
	p, ok, err := c.FindPool(ctx, mint)
	if err != nil {
		return Liquidity{}, err
	}
	if !ok {
		return Liquidity{USD: decimal.Zero}, nil
	}
	return Liquidity{
		USD:     decimal.NewFromFloat(p.Liquidity),
		PoolRef: p.ID,
		LPMint:  p.LPMint,
	}, nil
}

// LPMintFor returns the LP mint of the token's pool, or "" when it has none.
func (c *RaydiumClient) LPMintFor(ctx context.Context, mint string) (string, error) {
	p, ok, err := c.FindPool(ctx, mint)
	if err != nil || !ok {
		return "", err
	}
	return p.LPMint, nil
}

func (c *RaydiumClient) pools(ctx context.Context) (map[string]Pool, error) {
	c.mu.RLock()
	if c.byMint != nil && c.now().Sub(c.loadedAt) < c.cfg.CacheTTL {
		idx := c.byMint
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("pools", func() (any, error) {
		var doc poolListDoc
		if err := GetJSON(ctx, c.http, "raydium.pools", c.cfg.PoolListURL, c.cfg.Timeout, nil, &doc); err != nil {
			return nil, err
		}

		// First pool in list order wins for each mint.
		idx := make(map[string]Pool, len(doc.Official)*2)
		for _, p := range doc.Official {
			if _, ok := idx[p.BaseMint]; !ok && p.BaseMint != "" {
				idx[p.BaseMint] = p
			}
			if _, ok := idx[p.QuoteMint]; !ok && p.QuoteMint != "" {
				idx[p.QuoteMint] = p
			}
		}

		c.mu.Lock()
		c.byMint = idx
		c.loadedAt = c.now()
		c.mu.Unlock()

		log.Info().Int("pools", len(doc.Official)).Msg("raydium: pool list loaded")
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]Pool), nil
}
