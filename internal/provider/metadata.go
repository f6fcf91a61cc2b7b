package provider

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/nexus-trading/walletscope/internal/cache"
)

// TokenMetadata is the display identity of a mint.
type TokenMetadata struct {
	Mint    string `json:"mint"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	LogoURI string `json:"logo_uri,omitempty"`
}

const (
	UnknownTokenName   = "Unknown Token"
	UnknownTokenSymbol = "UNKNOWN"

	tokenLogoBase = "https://raw.githubusercontent.com/solana-labs/token-list/main/assets/mainnet/"
)

// knownTokens is consulted before any network call.
var knownTokens = map[string]TokenMetadata{
	"So11111111111111111111111111111111111111112": {
		Name: "Wrapped SOL", Symbol: "SOL",
		LogoURI: tokenLogoBase + "So11111111111111111111111111111111111111112/logo.png",
	},
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {
		Name: "USD Coin", Symbol: "USDC",
		LogoURI: tokenLogoBase + "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v/logo.png",
	},
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {
		Name: "Tether USD", Symbol: "USDT",
		LogoURI: tokenLogoBase + "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB/logo.svg",
	},
}

// KnownToken returns the static entry for mint, if any.
func KnownToken(mint string) (TokenMetadata, bool) {
	m, ok := knownTokens[mint]
	if ok {
		m.Mint = mint
	}
	return m, ok
}

// MetadataConfig configures the token-list metadata source.
type MetadataConfig struct {
	TokenListURL string        `yaml:"token_list_url"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`     // per-mint entries in the shared cache
	ListRefresh  time.Duration `yaml:"list_refresh"`  // how long the in-memory index is trusted
}

// DefaultMetadataConfig returns production defaults.
func DefaultMetadataConfig() MetadataConfig {
	return MetadataConfig{
		TokenListURL: "https://raw.githubusercontent.com/solana-labs/token-list/main/src/tokens/solana.tokenlist.json",
		Timeout:      10 * time.Second,
		CacheTTL:     6 * time.Hour,
		ListRefresh:  time.Hour,
	}
}

type tokenListDoc struct {
	Tokens []struct {
		ChainID int    `json:"chainId"`
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
		LogoURI string `json:"logoURI"`
	} `json:"tokens"`
}

const solanaMainnetChainID = 101

// MetadataClient resolves mint → name/symbol/logo.
// Lookup order: static table, shared cache, token list index.
type MetadataClient struct {
	cfg   MetadataConfig
	http  HTTPDoer
	cache cache.Cache

	group singleflight.Group

	mu       sync.RWMutex
	index    map[string]TokenMetadata
	loadedAt time.Time
	now      func() time.Time
}

// NewMetadataClient creates a metadata client. c may be nil to disable
// the shared per-mint cache.
func NewMetadataClient(cfg MetadataConfig, httpClient HTTPDoer, c cache.Cache) *MetadataClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &MetadataClient{
		cfg:   cfg,
		http:  httpClient,
		cache: c,
		now:   time.Now,
	}
}

// GetTokenMetadata resolves a mint. Mints absent from the token list get the
// "Unknown Token" record with a nil error; an error means the list itself
// could not be loaded.
func (c *MetadataClient) GetTokenMetadata(ctx context.Context, mint string) (TokenMetadata, error) {
	if m, ok := KnownToken(mint); ok {
		return m, nil
	}

	cacheKey := "meta:" + mint
	if c.cache != nil {
		var cached TokenMetadata
		err := c.cache.Get(ctx, cacheKey, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Debug().Err(err).Str("mint", mint).Msg("metadata: cache read failed")
		}
	}

	index, err := c.loadIndex(ctx)
	if err != nil {
		return TokenMetadata{}, err
	}

	meta, ok := index[mint]
	if !ok {
		meta = TokenMetadata{Mint: mint, Name: UnknownTokenName, Symbol: UnknownTokenSymbol}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, meta, c.cfg.CacheTTL); err != nil {
			log.Debug().Err(err).Str("mint", mint).Msg("metadata: cache write failed")
		}
	}
	return meta, nil
}

// loadIndex returns the in-memory token list index, fetching it at most once
// per refresh window. Concurrent callers share a single download.
func (c *MetadataClient) loadIndex(ctx context.Context) (map[string]TokenMetadata, error) {
	c.mu.RLock()
	if c.index != nil && c.now().Sub(c.loadedAt) < c.cfg.ListRefresh {
		idx := c.index
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("tokenlist", func() (any, error) {
		var doc tokenListDoc
		if err := GetJSON(ctx, c.http, "tokenlist.fetch", c.cfg.TokenListURL, c.cfg.Timeout, nil, &doc); err != nil {
			return nil, err
		}

		idx := make(map[string]TokenMetadata, len(doc.Tokens))
		for _, t := range doc.Tokens {
			if t.ChainID != 0 && t.ChainID != solanaMainnetChainID {
				continue
			}
			idx[t.Address] = TokenMetadata{Mint: t.Address, Name: t.Name, Symbol: t.Symbol, LogoURI: t.LogoURI}
		}

		c.mu.Lock()
		c.index = idx
		c.loadedAt = c.now()
		c.mu.Unlock()

		log.Info().Int("tokens", len(idx)).Msg("metadata: token list loaded")
		return idx, nil
	})
	if err != nil {
		c.mu.RLock()
		stale := c.index
		c.mu.RUnlock()
		if stale != nil {
			log.Warn().Err(err).Msg("metadata: token list refresh failed, serving stale index")
			return stale, nil
		}
		return nil, err
	}
	return v.(map[string]TokenMetadata), nil
}
