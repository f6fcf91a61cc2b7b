package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/walletscope/internal/provider"
)

// -----------------------------------------------------------------------
// Prometheus metrics
// -----------------------------------------------------------------------

func TestObserveProvider_Outcomes(t *testing.T) {
	before := testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("test_rpc", "getHealth", "ok"))
	ObserveProvider("test_rpc", "getHealth", time.Now(), nil)
	after := testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("test_rpc", "getHealth", "ok"))
	assert.Equal(t, before+1, after)

	ObserveProvider("test_rpc", "getHealth", time.Now(), provider.RateLimited("op", time.Second))
	assert.Equal(t, 1.0, testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("test_rpc", "getHealth", "rate_limited")))
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/wallet_activity/:wallet", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/wallet_activity/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.GreaterOrEqual(t,
		testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/wallet_activity/:wallet", "2xx")), 1.0)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "walletscope_http_requests_total")
}

func TestStatusBucket(t *testing.T) {
	assert.Equal(t, "2xx", statusBucket(204))
	assert.Equal(t, "4xx", statusBucket(429))
	assert.Equal(t, "5xx", statusBucket(503))
}

// -----------------------------------------------------------------------
// HealthMonitor Tests
// -----------------------------------------------------------------------

func TestHealthMonitor_RegisterAndCheck(t *testing.T) {
	mon := NewHealthMonitor(time.Second, time.Second)

	mon.Register("solana_rpc", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy, Message: "ok"}
	})
	mon.Register("redis", PingCheck(func(ctx context.Context) error { return nil }, true))

	health := mon.Check(context.Background())

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Len(t, health.Components, 2)

	rpc, ok := health.Components["solana_rpc"]
	require.True(t, ok)
	assert.Equal(t, "solana_rpc", rpc.Name)
	assert.Equal(t, "ok", rpc.Message)
	assert.False(t, rpc.LastChecked.IsZero())

	comp, ok := mon.ComponentStatus("redis")
	assert.True(t, ok)
	assert.Equal(t, StatusHealthy, comp.Status)

	_, ok = mon.ComponentStatus("nonexistent")
	assert.False(t, ok)
}

func TestHealthMonitor_AggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ComponentStatus
		expected ComponentStatus
	}{
		{"all healthy", []ComponentStatus{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []ComponentStatus{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []ComponentStatus{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := NewHealthMonitor(time.Minute, time.Second)
			for i, s := range tt.statuses {
				status := s
				mon.Register(string(rune('a'+i)), func(ctx context.Context) ComponentHealth {
					return ComponentHealth{Status: status}
				})
			}
			assert.Equal(t, tt.expected, mon.Check(context.Background()).Status)
		})
	}
}

func TestPingCheck_OptionalDegrades(t *testing.T) {
	fail := func(ctx context.Context) error { return errors.New("connection refused") }

	h := PingCheck(fail, true)(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Contains(t, h.Message, "connection refused")

	h = PingCheck(fail, false)(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
}

func TestHealthMonitor_CheckTimeout(t *testing.T) {
	mon := NewHealthMonitor(time.Minute, 20*time.Millisecond)
	mon.Register("slow", PingCheck(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, false))

	start := time.Now()
	health := mon.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, health.Status)
}

func TestHealthMonitor_Transitions(t *testing.T) {
	mon := NewHealthMonitor(time.Minute, time.Second)

	var mu sync.Mutex
	calls := 0
	mon.Register("flaky", func(ctx context.Context) ComponentHealth {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return ComponentHealth{Status: StatusHealthy}
		}
		return ComponentHealth{Status: StatusUnhealthy, Message: "connection lost"}
	})

	var got []ComponentHealth
	mon.OnTransition(func(prev ComponentStatus, cur ComponentHealth) {
		assert.Equal(t, StatusHealthy, prev)
		got = append(got, cur)
	})

	mon.Check(context.Background())
	assert.Empty(t, got, "first observation is not a transition")

	mon.Check(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "flaky", got[0].Name)
	assert.Equal(t, "connection lost", got[0].Message)
}

func TestHealthMonitor_StartStop(t *testing.T) {
	mon := NewHealthMonitor(30*time.Millisecond, time.Second)

	var mu sync.Mutex
	count := 0
	mon.Register("ticker", func(ctx context.Context) ComponentHealth {
		mu.Lock()
		count++
		mu.Unlock()
		return ComponentHealth{Status: StatusHealthy}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		mon.Start(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	mon.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 2)
}
