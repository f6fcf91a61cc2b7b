package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/walletscope/internal/provider"
)

func newTestRPCServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *LiveRPCClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	config := RPCConfig{
		Endpoint:         server.URL,
		Timeout:          5 * time.Second,
		MaxRetries:       1,
		RateLimitRPS:     100,
		MaxRateLimitWait: 100 * time.Millisecond,
	}
	client := NewLiveRPCClient(config)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  result,
	})
}

func TestLiveRPC_Health(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, "ok")
	})

	err := client.Health(context.Background())
	assert.NoError(t, err)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.RequestCount)
}

func TestLiveRPC_GetTokenHoldings(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "getTokenAccountsByOwner", req.Method)

		account := func(mint, amount, ui string) map[string]any {
			return map[string]any{
				"account": map[string]any{
					"data": map[string]any{
						"parsed": map[string]any{
							"info": map[string]any{
								"mint":  mint,
								"owner": "wallet-1",
								"tokenAmount": map[string]any{
									"amount":         amount,
									"decimals":       6,
									"uiAmountString": ui,
								},
							},
						},
					},
				},
			}
		}
		writeResult(w, map[string]any{
			"value": []any{
				account("MintA", "2500000", "2.5"),
				account("MintEmpty", "0", "0"),
				account("MintB", "1", "0.000001"),
			},
		})
	})

	holdings, err := client.GetTokenHoldings(context.Background(), Pubkey("wallet-1"))
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, Pubkey("MintA"), holdings[0].Mint)
	assert.Equal(t, "2.5", holdings[0].UIAmount.String())
	assert.Equal(t, uint8(6), holdings[0].Decimals)
	assert.Equal(t, Pubkey("MintB"), holdings[1].Mint)
}

func TestLiveRPC_GetSignatures(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		opts := req.Params[1].(map[string]any)
		assert.Equal(t, float64(10), opts["limit"])

		writeResult(w, []map[string]any{
			{"signature": "sig1", "slot": 100, "blockTime": 1700000000, "memo": nil, "err": nil},
			{"signature": "sig2", "slot": 99, "blockTime": nil, "memo": "hello", "err": map[string]any{"InstructionError": []any{0, "Custom"}}},
		})
	})

	sigs, err := client.GetSignatures(context.Background(), Pubkey("wallet-1"), 10)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, int64(1700000000), sigs[0].BlockTime)
	assert.False(t, sigs[0].Failed)
	assert.Equal(t, "hello", sigs[1].Memo)
	assert.True(t, sigs[1].Failed)
	assert.Equal(t, int64(0), sigs[1].BlockTime)
}

func TestLiveRPC_GetBalanceChange(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"meta": map[string]any{
				"preBalances":  []uint64{5_000_000_000, 150_000_000_000},
				"postBalances": []uint64{4_999_995_000, 25_000_000_000},
			},
			"transaction": map[string]any{
				"message": map[string]any{
					"accountKeys": []string{"fee-payer", "wallet-1"},
				},
			},
		})
	})

	change, err := client.GetBalanceChange(context.Background(), Signature("sig1"), Pubkey("wallet-1"))
	require.NoError(t, err)
	assert.Equal(t, "-125", change.String())

	_, err = client.GetBalanceChange(context.Background(), Signature("sig1"), Pubkey("stranger"))
	assert.Equal(t, provider.KindBadResponse, provider.KindOf(err))
}

func TestLiveRPC_GetHolderDistribution(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"value": []map[string]any{
				{"address": "holder1", "amount": "500000", "decimals": 9, "uiAmount": 0.0005},
				{"address": "holder2", "amount": "300000", "decimals": 9, "uiAmount": 0.0003},
			},
		})
	})

	holders, err := client.GetHolderDistribution(context.Background(), Pubkey("test-mint"))
	require.NoError(t, err)
	assert.Len(t, holders, 2)
	assert.Equal(t, Pubkey("holder1"), holders[0].Address)
	assert.Equal(t, "500000", holders[0].Amount.String())
}

func TestLiveRPC_GetMintAuthority(t *testing.T) {
	authority := any(nil)
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"value": map[string]any{
				"data": map[string]any{
					"parsed": map[string]any{
						"type": "mint",
						"info": map[string]any{"decimals": 9, "mintAuthority": authority},
					},
				},
			},
		})
	})

	a, err := client.GetMintAuthority(context.Background(), Pubkey("test-mint"))
	require.NoError(t, err)
	assert.Equal(t, AuthorityRenounced, a)

	authority = "AuthKey1111"
	a, err = client.GetMintAuthority(context.Background(), Pubkey("test-mint"))
	require.NoError(t, err)
	assert.Equal(t, AuthorityActive, a)
}

func TestLiveRPC_GetMintAuthority_NotFound(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{"value": nil})
	})

	a, err := client.GetMintAuthority(context.Background(), Pubkey("missing"))
	assert.Error(t, err)
	assert.Equal(t, AuthorityUnknown, a)
	assert.Equal(t, provider.KindBadResponse, provider.KindOf(err))
}

func TestLiveRPC_GetTokenSupply(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"value": map[string]any{"amount": "0", "decimals": 9, "uiAmountString": "0"},
		})
	})

	supply, err := client.GetTokenSupply(context.Background(), Pubkey("lp-mint"))
	require.NoError(t, err)
	assert.True(t, supply.IsZero())
}

func TestLiveRPC_RetryOnError(t *testing.T) {
	var callCount atomic.Int64
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		if callCount.Add(1) == 1 {
			w.WriteHeader(500)
			w.Write([]byte("internal error"))
			return
		}
		writeResult(w, "ok")
	})

	err := client.Health(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(2), callCount.Load(), "Should retry once after failure")
}

func TestLiveRPC_RateLimited(t *testing.T) {
	var callCount atomic.Int64
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetTokenHoldings(context.Background(), Pubkey("wallet-1"))
	require.Error(t, err)
	assert.Equal(t, provider.KindRateLimited, provider.KindOf(err))
	assert.Equal(t, int64(1), callCount.Load(), "Retry-After beyond the wait cap must not be retried")
}

func TestLiveRPC_Unauthorized(t *testing.T) {
	var callCount atomic.Int64
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.Health(context.Background())
	assert.Equal(t, provider.KindUnauthorized, provider.KindOf(err))
	assert.Equal(t, int64(1), callCount.Load())
}

func TestLiveRPC_RPCError(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error": map[string]any{
				"code":    -32600,
				"message": "Invalid request",
			},
		})
	})

	err := client.Health(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid request")
	assert.Equal(t, provider.KindBadResponse, provider.KindOf(err))
}

func TestLiveRPC_ContextCancellation(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.GetTokenHoldings(ctx, Pubkey("wallet-1"))
	require.Error(t, err)
	assert.Equal(t, provider.KindTimeout, provider.KindOf(err))
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("So11111111111111111111111111111111111111112"))
	assert.True(t, IsValidAddress(" 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM "))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("0xabc"))
	assert.False(t, IsValidAddress("short"))
	assert.False(t, IsValidAddress("O0Il1111111111111111111111111111111"))
}
