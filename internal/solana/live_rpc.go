package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nexus-trading/walletscope/internal/observability"
	"github.com/nexus-trading/walletscope/internal/provider"
)

// ---------------------------------------------------------------------------
// Live RPC Client: Solana JSON-RPC with rate limiting and retry
// ---------------------------------------------------------------------------

// LiveRPCClient talks to a Solana JSON-RPC endpoint (public node or Helius).
type LiveRPCClient struct {
	config     RPCConfig
	httpClient *http.Client

	// Rate limiter (token bucket).
	limiter       chan struct{}
	limiterCancel context.CancelFunc

	// Unique request ID generator.
	nextID atomic.Int64

	// Circuit breaker.
	consecutiveErrors atomic.Int64
	circuitOpen       atomic.Bool

	// Stats.
	requestCount  atomic.Int64
	errorCount    atomic.Int64
	latencySum    atomic.Int64 // cumulative microseconds
	lastRequestAt atomic.Int64
}

const (
	circuitBreakerThreshold = 10 // open after 10 consecutive errors
	circuitBreakerCooldown  = 30 * time.Second

	// largestAccountsCap matches what getTokenLargestAccounts returns.
	largestAccountsCap = 20

	providerName = "solana_rpc"
)

var errCircuitOpen = errors.New("circuit breaker open")

// NewLiveRPCClient creates a live Solana RPC client.
func NewLiveRPCClient(config RPCConfig) *LiveRPCClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 10
	}
	if config.MaxRateLimitWait == 0 {
		config.MaxRateLimitWait = 5 * time.Second
	}

	bucketSize := int(config.RateLimitRPS)
	if bucketSize < 1 {
		bucketSize = 1
	}
	limiter := make(chan struct{}, bucketSize)
	for i := 0; i < bucketSize; i++ {
		limiter <- struct{}{}
	}

	limiterCtx, limiterCancel := context.WithCancel(context.Background())

	client := &LiveRPCClient{
		config:        config,
		httpClient:    &http.Client{Timeout: config.Timeout},
		limiter:       limiter,
		limiterCancel: limiterCancel,
	}

	// Refill tokens at configured RPS.
	go func() {
		interval := time.Duration(float64(time.Second) / config.RateLimitRPS)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-limiterCtx.Done():
				return
			case <-ticker.C:
				select {
				case client.limiter <- struct{}{}:
				default: // bucket full
				}
			}
		}
	}()

	return client
}

// Close shuts down the RPC client.
func (c *LiveRPCClient) Close() {
	c.limiterCancel()
}

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call makes a rate-limited, retried JSON-RPC call. Every failure is a
// *provider.Error.
func (c *LiveRPCClient) call(ctx context.Context, method string, params []any) (result json.RawMessage, err error) {
	op := "rpc." + method
	start := time.Now()
	defer func() { observability.ObserveProvider(providerName, method, start, err) }()

	if c.circuitOpen.Load() {
		return nil, provider.Network(op, errCircuitOpen)
	}

	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, provider.FromTransport(op, ctx.Err())
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, provider.BadResponse(op, "marshal request", err)
	}

	var lastErr *provider.Error
	var wait time.Duration
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 250 * time.Millisecond
			if wait > backoff {
				backoff = wait
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, provider.FromTransport(op, ctx.Err())
			}
		}
		wait = 0

		res, perr, retry := c.attempt(ctx, op, body)
		if perr == nil {
			c.resetErrors()
			return res, nil
		}
		lastErr = perr
		if !retry || ctx.Err() != nil {
			break
		}
		if perr.Kind == provider.KindRateLimited {
			wait = perr.RetryAfter
		}
	}

	return nil, lastErr
}

// attempt performs one HTTP round trip. retry says whether another attempt
// could succeed.
func (c *LiveRPCClient) attempt(ctx context.Context, op string, body []byte) (json.RawMessage, *provider.Error, bool) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, provider.Network(op, fmt.Errorf("create request: %w", err)), false
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.errorCount.Add(1)
		c.recordError()
		return nil, provider.FromTransport(op, err), true
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		c.errorCount.Add(1)
		c.recordError()
		return nil, provider.FromTransport(op, fmt.Errorf("read response: %w", err)), true
	}

	c.requestCount.Add(1)
	c.latencySum.Add(time.Since(start).Microseconds())
	c.lastRequestAt.Store(time.Now().UnixMilli())

	if perr := provider.FromStatus(op, resp.StatusCode, resp.Header, respBody); perr != nil {
		c.errorCount.Add(1)
		switch perr.Kind {
		case provider.KindRateLimited:
			// Don't count 429 as a circuit-breaker error.
			return nil, perr, perr.RetryAfter <= c.config.MaxRateLimitWait
		case provider.KindUnauthorized:
			return nil, perr, false
		default:
			c.recordError()
			return nil, perr, true
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.errorCount.Add(1)
		c.recordError()
		return nil, provider.BadResponse(op, "malformed JSON-RPC envelope", err), true
	}
	if rpcResp.Error != nil {
		c.resetErrors()
		return nil, provider.BadResponse(op,
			fmt.Sprintf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message), nil), false
	}
	if len(rpcResp.Result) == 0 {
		return nil, provider.BadResponse(op, "missing result", nil), false
	}
	return rpcResp.Result, nil, false
}

// recordError increments consecutive errors and opens circuit breaker if needed.
func (c *LiveRPCClient) recordError() {
	count := c.consecutiveErrors.Add(1)
	if count >= circuitBreakerThreshold {
		if c.circuitOpen.CompareAndSwap(false, true) {
			observability.CircuitOpen.WithLabelValues(providerName).Set(1)
			log.Error().Int64("errors", count).Msg("rpc: CIRCUIT BREAKER OPEN - too many consecutive errors")
			go func() {
				time.Sleep(circuitBreakerCooldown)
				c.circuitOpen.Store(false)
				c.consecutiveErrors.Store(0)
				observability.CircuitOpen.WithLabelValues(providerName).Set(0)
				log.Info().Msg("rpc: circuit breaker reset")
			}()
		}
	}
}

// resetErrors resets the consecutive error counter.
func (c *LiveRPCClient) resetErrors() {
	c.consecutiveErrors.Store(0)
}

func decode(op string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return provider.BadResponse(op, "unexpected result shape", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// RPCClient interface implementation
// ---------------------------------------------------------------------------

// GetTokenHoldings lists SPL token accounts via getTokenAccountsByOwner.
// Zero-balance accounts are skipped.
func (c *LiveRPCClient) GetTokenHoldings(ctx context.Context, wallet Pubkey) ([]TokenHolding, error) {
	result, err := c.call(ctx, "getTokenAccountsByOwner", []any{
		string(wallet),
		map[string]any{"programId": TokenProgramID},
		map[string]any{"encoding": "jsonParsed"},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							Owner       string `json:"owner"`
							TokenAmount struct {
								Amount         string `json:"amount"`
								Decimals       uint8  `json:"decimals"`
								UIAmountString string `json:"uiAmountString"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := decode("rpc.getTokenAccountsByOwner", result, &resp); err != nil {
		return nil, err
	}

	holdings := make([]TokenHolding, 0, len(resp.Value))
	for _, ta := range resp.Value {
		info := ta.Account.Data.Parsed.Info
		if info.TokenAmount.Amount == "" || info.TokenAmount.Amount == "0" {
			continue
		}
		amount, _ := decimal.NewFromString(info.TokenAmount.Amount)
		ui, _ := decimal.NewFromString(info.TokenAmount.UIAmountString)
		holdings = append(holdings, TokenHolding{
			Mint:     Pubkey(info.Mint),
			Owner:    Pubkey(info.Owner),
			Amount:   amount,
			Decimals: info.TokenAmount.Decimals,
			UIAmount: ui,
		})
	}
	return holdings, nil
}

// GetSignatures lists recent signatures via getSignaturesForAddress.
func (c *LiveRPCClient) GetSignatures(ctx context.Context, wallet Pubkey, limit int) ([]SignatureInfo, error) {
	result, err := c.call(ctx, "getSignaturesForAddress", []any{
		string(wallet),
		map[string]any{"limit": limit},
	})
	if err != nil {
		return nil, err
	}

	var sigs []struct {
		Signature string  `json:"signature"`
		Slot      uint64  `json:"slot"`
		BlockTime *int64  `json:"blockTime"`
		Memo      *string `json:"memo"`
		Err       any     `json:"err"`
	}
	if err := decode("rpc.getSignaturesForAddress", result, &sigs); err != nil {
		return nil, err
	}

	out := make([]SignatureInfo, 0, len(sigs))
	for _, s := range sigs {
		info := SignatureInfo{
			Signature: Signature(s.Signature),
			Slot:      s.Slot,
			Failed:    s.Err != nil,
		}
		if s.BlockTime != nil {
			info.BlockTime = *s.BlockTime
		}
		if s.Memo != nil {
			info.Memo = *s.Memo
		}
		out = append(out, info)
	}
	return out, nil
}

// GetBalanceChange reads pre/post lamport balances from getTransaction.
func (c *LiveRPCClient) GetBalanceChange(ctx context.Context, sig Signature, wallet Pubkey) (decimal.Decimal, error) {
	const op = "rpc.getTransaction"
	result, err := c.call(ctx, "getTransaction", []any{
		string(sig),
		map[string]any{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	})
	if err != nil {
		return decimal.Zero, err
	}

	var tx *struct {
		Meta *struct {
			PreBalances  []uint64 `json:"preBalances"`
			PostBalances []uint64 `json:"postBalances"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	if err := decode(op, result, &tx); err != nil {
		return decimal.Zero, err
	}
	if tx == nil || tx.Meta == nil {
		return decimal.Zero, provider.BadResponse(op, "transaction or meta not available", nil)
	}

	idx := -1
	for i, k := range tx.Transaction.Message.AccountKeys {
		if k == string(wallet) {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return decimal.Zero, provider.BadResponse(op, "wallet not among static account keys", nil)
	}

	// lamport balances stay far below MaxInt64
	pre := decimal.NewFromInt(int64(tx.Meta.PreBalances[idx]))
	post := decimal.NewFromInt(int64(tx.Meta.PostBalances[idx]))
	return post.Sub(pre).Div(LamportsPerSOL), nil
}

// GetHolderDistribution returns the largest accounts via getTokenLargestAccounts.
func (c *LiveRPCClient) GetHolderDistribution(ctx context.Context, mint Pubkey) ([]HolderInfo, error) {
	result, err := c.call(ctx, "getTokenLargestAccounts", []any{string(mint)})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Value []struct {
			Address string `json:"address"`
			Amount  string `json:"amount"`
		} `json:"value"`
	}
	if err := decode("rpc.getTokenLargestAccounts", result, &resp); err != nil {
		return nil, err
	}

	holders := make([]HolderInfo, 0, len(resp.Value))
	for i, h := range resp.Value {
		if i >= largestAccountsCap {
			break
		}
		amount, err := decimal.NewFromString(h.Amount)
		if err != nil {
			continue
		}
		holders = append(holders, HolderInfo{Address: Pubkey(h.Address), Amount: amount})
	}
	return holders, nil
}

// GetMintAuthority reads the parsed mint account via getAccountInfo.
func (c *LiveRPCClient) GetMintAuthority(ctx context.Context, mint Pubkey) (MintAuthority, error) {
	const op = "rpc.getAccountInfo"
	result, err := c.call(ctx, "getAccountInfo", []any{
		string(mint),
		map[string]any{"encoding": "jsonParsed"},
	})
	if err != nil {
		return AuthorityUnknown, err
	}

	var resp struct {
		Value *struct {
			Data struct {
				Parsed struct {
					Type string `json:"type"`
					Info struct {
						MintAuthority *string `json:"mintAuthority"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := decode(op, result, &resp); err != nil {
		return AuthorityUnknown, err
	}
	if resp.Value == nil {
		return AuthorityUnknown, provider.BadResponse(op, fmt.Sprintf("mint %s not found", mint), nil)
	}
	if t := resp.Value.Data.Parsed.Type; t != "" && t != "mint" {
		return AuthorityUnknown, provider.BadResponse(op, fmt.Sprintf("account %s is %q, not a mint", mint, t), nil)
	}

	if a := resp.Value.Data.Parsed.Info.MintAuthority; a == nil || *a == "" {
		return AuthorityRenounced, nil
	}
	return AuthorityActive, nil
}

// GetTokenSupply returns the raw supply via getTokenSupply.
func (c *LiveRPCClient) GetTokenSupply(ctx context.Context, mint Pubkey) (decimal.Decimal, error) {
	const op = "rpc.getTokenSupply"
	result, err := c.call(ctx, "getTokenSupply", []any{string(mint)})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := decode(op, result, &resp); err != nil {
		return decimal.Zero, err
	}
	supply, err := decimal.NewFromString(resp.Value.Amount)
	if err != nil {
		return decimal.Zero, provider.BadResponse(op, "supply is not a number", err)
	}
	return supply, nil
}

// Health checks the RPC endpoint health.
func (c *LiveRPCClient) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.call(healthCtx, "getHealth", nil)
	return err
}

// RPCStats returns RPC client statistics.
type RPCStats struct {
	RequestCount  int64 `json:"request_count"`
	ErrorCount    int64 `json:"error_count"`
	AvgLatencyUs  int64 `json:"avg_latency_us"`
	LastRequestAt int64 `json:"last_request_at"`
	CircuitOpen   bool  `json:"circuit_open"`
	ConsecErrors  int64 `json:"consecutive_errors"`
}

func (c *LiveRPCClient) Stats() RPCStats {
	reqCount := c.requestCount.Load()
	avgLatency := int64(0)
	if reqCount > 0 {
		avgLatency = c.latencySum.Load() / reqCount
	}
	return RPCStats{
		RequestCount:  reqCount,
		ErrorCount:    c.errorCount.Load(),
		AvgLatencyUs:  avgLatency,
		LastRequestAt: c.lastRequestAt.Load(),
		CircuitOpen:   c.circuitOpen.Load(),
		ConsecErrors:  c.consecutiveErrors.Load(),
	}
}
