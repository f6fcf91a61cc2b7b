// Package api exposes the wallet analysis pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/walletscope/internal/coordinator"
	"github.com/nexus-trading/walletscope/internal/explain"
	"github.com/nexus-trading/walletscope/internal/observability"
	"github.com/nexus-trading/walletscope/internal/provider"
	"github.com/nexus-trading/walletscope/internal/risk"
	"github.com/nexus-trading/walletscope/internal/solana"
)

// ActivitySource is the name reported by the wallet activity endpoint.
const ActivitySource = "rpc"

// Config configures the HTTP listener.
type Config struct {
	Addr            string        `yaml:"addr"`             // default: :8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 10s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 60s, covers a full analysis
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Analyzer runs one wallet analysis.
type Analyzer interface {
	AnalyzeWallet(ctx context.Context, wallet string) (*coordinator.Report, error)
}

// Deps are the server's collaborators. Nil Activity, Alerts or Health
// disable their routes with 503.
type Deps struct {
	Analyzer      Analyzer
	Activity      coordinator.ActivityProvider
	ActivityLimit int
	Alerts        http.Handler
	Health        *observability.HealthMonitor
	Metrics       bool
	Thresholds    risk.Thresholds // explain tiers; zero means the defaults
}

// Server is the gin HTTP front end.
type Server struct {
	config Config
	deps   Deps
	router *gin.Engine
}

// New builds the router.
func New(config Config, deps Deps) *Server {
	if deps.Thresholds == (risk.Thresholds{}) {
		deps.Thresholds = risk.DefaultThresholds()
	}
	s := &Server{config: config, deps: deps, router: gin.New()}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.config.Addr).Msg("api: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	log.Info().Msg("api: shutting down")
	return srv.Shutdown(shutdownCtx)
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		zerolog.Ctx(c.Request.Context()).Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Msg("api: panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))
	s.router.Use(requestIDMiddleware())
	s.router.Use(observability.Middleware())
	s.router.Use(loggingMiddleware())
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		logger := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		logger := zerolog.Ctx(c.Request.Context())
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = logger.Error()
		case status >= 400:
			ev = logger.Warn()
		default:
			ev = logger.Info()
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("api: request completed")
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	api.POST("/analyze_wallet", s.analyzeWallet)
	api.GET("/wallet_activity/:wallet", s.walletActivity)
	api.POST("/explain", s.explain)
	api.GET("/subscribe_alerts", s.subscribeAlerts)
	api.GET("/health", s.health)

	if s.deps.Metrics {
		s.router.GET("/metrics", observability.Handler())
	}
}

type analyzeRequest struct {
	Wallet string `json:"wallet"`
}

// analyzeWallet handles POST /api/analyze_wallet
func (s *Server) analyzeWallet(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}

	report, err := s.deps.Analyzer.AnalyzeWallet(c.Request.Context(), req.Wallet)
	if err != nil {
		status := http.StatusInternalServerError
		code := "analysis_failed"
		switch {
		case errors.Is(err, coordinator.ErrInvalidInput):
			status = http.StatusBadRequest
			code = "invalid_wallet"
		case errors.Is(err, coordinator.ErrExhausted):
			status = http.StatusServiceUnavailable
			code = "analysis_unavailable"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// walletActivity handles GET /api/wallet_activity/:wallet
func (s *Server) walletActivity(c *gin.Context) {
	if s.deps.Activity == nil {
		unavailable(c, "activity")
		return
	}

	wallet := strings.TrimSpace(c.Param("wallet"))
	if !solana.IsValidAddress(wallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_wallet", "message": "invalid wallet address"})
		return
	}

	limit := s.deps.ActivityLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "limit must be an integer"})
			return
		}
		limit = n
	}
	limit = solana.ClampActivityLimit(limit)

	records, err := s.deps.Activity.GetActivity(c.Request.Context(), solana.Pubkey(wallet), limit)
	if err != nil {
		providerFailure(c, err)
		return
	}
	if records == nil {
		records = []solana.ActivityRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": records,
		"total":        len(records),
		"source":       ActivitySource,
	})
}

type explainRequest struct {
	Specialty string         `json:"specialty"`
	Results   map[string]any `json:"results"`
}

// explain handles POST /api/explain
func (s *Server) explain(c *gin.Context) {
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}

	text := explain.ExplainNamedWith(s.deps.Thresholds, req.Specialty, req.Results)
	c.JSON(http.StatusOK, gin.H{
		"explanation": text,
		"confidence":  explain.Confidence(text),
	})
}

// subscribeAlerts handles GET /api/subscribe_alerts
func (s *Server) subscribeAlerts(c *gin.Context) {
	if s.deps.Alerts == nil {
		unavailable(c, "alerts")
		return
	}
	s.deps.Alerts.ServeHTTP(c.Writer, c.Request)
}

// health handles GET /api/health
func (s *Server) health(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": observability.StatusHealthy})
		return
	}
	h := s.deps.Health.Check(c.Request.Context())
	status := http.StatusOK
	if h.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func unavailable(c *gin.Context, feature string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "unavailable",
		"message": feature + " is not configured",
	})
}

// providerFailure maps an upstream error onto a gateway status.
func providerFailure(c *gin.Context, err error) {
	status := http.StatusBadGateway
	kind := provider.KindOf(err)
	switch kind {
	case provider.KindRateLimited:
		status = http.StatusTooManyRequests
		var pe *provider.Error
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(pe.RetryAfter.Seconds())))
		}
	case provider.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": kind.String(), "message": err.Error()})
}
