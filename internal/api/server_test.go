package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/walletscope/internal/coordinator"
	"github.com/nexus-trading/walletscope/internal/observability"
	"github.com/nexus-trading/walletscope/internal/provider"
	"github.com/nexus-trading/walletscope/internal/risk"
	"github.com/nexus-trading/walletscope/internal/solana"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func setupServer(t *testing.T, stub *solana.StubRPCClient, deps Deps) *Server {
	t.Helper()
	activity := solana.NewActivityReader(stub, 2)
	if deps.Analyzer == nil {
		deps.Analyzer = coordinator.New(coordinator.DefaultConfig(), coordinator.Deps{
			Holdings: stub,
			Activity: activity,
		})
	}
	if deps.Activity == nil {
		deps.Activity = activity
	}
	return New(DefaultConfig(), deps)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestAnalyzeWallet_OK(t *testing.T) {
	stub := solana.NewStubRPCClient()
	s := setupServer(t, stub, Deps{})

	w := do(t, s, http.MethodPost, "/api/analyze_wallet", gin.H{"wallet": testWallet})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var report coordinator.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, testWallet, report.Wallet)
	assert.NotEmpty(t, report.CombinedSummary)
}

func TestAnalyzeWallet_BadRequests(t *testing.T) {
	s := setupServer(t, solana.NewStubRPCClient(), Deps{})

	w := do(t, s, http.MethodPost, "/api/analyze_wallet", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")

	w = do(t, s, http.MethodPost, "/api/analyze_wallet", gin.H{"wallet": "0xnot-solana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_wallet")
}

type exhaustedAnalyzer struct{}

func (exhaustedAnalyzer) AnalyzeWallet(context.Context, string) (*coordinator.Report, error) {
	return nil, coordinator.ErrExhausted
}

func TestAnalyzeWallet_Exhausted(t *testing.T) {
	s := setupServer(t, solana.NewStubRPCClient(), Deps{Analyzer: exhaustedAnalyzer{}})
	w := do(t, s, http.MethodPost, "/api/analyze_wallet", gin.H{"wallet": testWallet})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWalletActivity(t *testing.T) {
	stub := solana.NewStubRPCClient()
	stub.AddTransaction(testWallet, solana.SignatureInfo{Signature: "sig-1", Slot: 10}, decimal.NewFromInt(-2))
	stub.AddTransaction(testWallet, solana.SignatureInfo{Signature: "sig-2", Slot: 11}, decimal.NewFromInt(1))
	s := setupServer(t, stub, Deps{ActivityLimit: 50})

	w := do(t, s, http.MethodGet, "/api/wallet_activity/"+testWallet, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Transactions []solana.ActivityRecord `json:"transactions"`
		Total        int                     `json:"total"`
		Source       string                  `json:"source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, ActivitySource, body.Source)
	assert.Equal(t, solana.Signature("sig-1"), body.Transactions[0].Signature)
}

func TestWalletActivity_Errors(t *testing.T) {
	stub := solana.NewStubRPCClient()
	s := setupServer(t, stub, Deps{})

	w := do(t, s, http.MethodGet, "/api/wallet_activity/bad!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/wallet_activity/"+testWallet+"?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.SetError(solana.MethodSignatures, provider.RateLimited("rpc.getSignaturesForAddress", 30*time.Second))
	w = do(t, s, http.MethodGet, "/api/wallet_activity/"+testWallet, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	stub.SetError(solana.MethodSignatures, provider.Unauthorized("rpc.getSignaturesForAddress", 401))
	w = do(t, s, http.MethodGet, "/api/wallet_activity/"+testWallet, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestExplain(t *testing.T) {
	s := setupServer(t, solana.NewStubRPCClient(), Deps{})

	w := do(t, s, http.MethodPost, "/api/explain", gin.H{
		"specialty": "risk_advisor",
		"results":   gin.H{"risk_score": 82, "risk_reason": "x"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Explanation string  `json:"explanation"`
		Confidence  float64 `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Explanation, "82")
	assert.Contains(t, body.Explanation, "x")
	assert.Greater(t, body.Confidence, 0.0)

	w = do(t, s, http.MethodPost, "/api/explain", gin.H{"specialty": "astrologer", "results": gin.H{}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No additional trace available.")

	w = do(t, s, http.MethodPost, "/api/explain", "[")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExplain_UsesConfiguredThresholds(t *testing.T) {
	s := setupServer(t, solana.NewStubRPCClient(), Deps{Thresholds: risk.Thresholds{High: 50, Medium: 20}})

	w := do(t, s, http.MethodPost, "/api/explain", gin.H{
		"specialty": "token_forensics",
		"results":   gin.H{"risk_score": 60},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Token shows high risk")
}

func TestHealth(t *testing.T) {
	hm := observability.NewHealthMonitor(time.Minute, time.Second)
	hm.Register("rpc", observability.PingCheck(func(context.Context) error { return nil }, false))
	s := setupServer(t, solana.NewStubRPCClient(), Deps{Health: hm})

	w := do(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rpc"`)

	hm.Register("redis", observability.PingCheck(func(context.Context) error { return assert.AnError }, false))
	w = do(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAlertsAndMetricsRoutes(t *testing.T) {
	s := setupServer(t, solana.NewStubRPCClient(), Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/subscribe_alerts", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics", nil).Code)

	called := false
	s = setupServer(t, solana.NewStubRPCClient(), Deps{
		Metrics: true,
		Alerts: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusSwitchingProtocols)
		}),
	})
	do(t, s, http.MethodGet, "/api/subscribe_alerts", nil)
	assert.True(t, called)

	w := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "walletscope_")
}

func TestRequestIDPropagated(t *testing.T) {
	s := setupServer(t, solana.NewStubRPCClient(), Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}
