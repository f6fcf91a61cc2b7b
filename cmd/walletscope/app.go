package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/walletscope/internal/advisor"
	"github.com/nexus-trading/walletscope/internal/alerts"
	"github.com/nexus-trading/walletscope/internal/audit"
	"github.com/nexus-trading/walletscope/internal/bus"
	"github.com/nexus-trading/walletscope/internal/cache"
	"github.com/nexus-trading/walletscope/internal/config"
	"github.com/nexus-trading/walletscope/internal/coordinator"
	"github.com/nexus-trading/walletscope/internal/forensics"
	"github.com/nexus-trading/walletscope/internal/monitor"
	"github.com/nexus-trading/walletscope/internal/observability"
	"github.com/nexus-trading/walletscope/internal/provider"
	"github.com/nexus-trading/walletscope/internal/solana"
)

// app holds the wired pipeline shared by every command.
type app struct {
	cfg         *config.Config
	coordinator *coordinator.Coordinator
	activity    *solana.ActivityReader
	registry    *alerts.Registry
	trail       *audit.Trail
	health      *observability.HealthMonitor
	producer    bus.Producer // nil when kafka is disabled
	started     time.Time

	closers []func()
}

// buildApp wires every component from cfg. Optional backends (redis,
// kafka) that cannot be reached are logged and skipped.
func buildApp(ctx context.Context, cfg *config.Config, stub bool) *app {
	a := &app{
		cfg:     cfg,
		health:  observability.NewHealthMonitor(cfg.Metrics.HealthInterval, 5*time.Second),
		started: time.Now(),
	}

	// 1. Solana RPC.
	var rpc solana.RPCClient
	if stub {
		rpc = solana.NewStubRPCClient()
		log.Info().Msg("Solana RPC: STUB mode")
	} else {
		live := solana.NewLiveRPCClient(cfg.Solana)
		a.closers = append(a.closers, live.Close)
		rpc = live
		log.Info().Str("endpoint", redactEndpoint(cfg.Solana.Endpoint)).Msg("Solana RPC: LIVE")
	}
	a.health.Register("solana_rpc", observability.PingCheck(rpc.Health, false))

	// 2. Shared cache.
	var shared cache.Cache = cache.NewMemoryCache(cfg.Providers.MemoryCacheKeys)
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.RedisConfig)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, using in-memory cache")
		} else {
			rc := cache.NewRedisCache(rdb, cfg.Redis.Prefix)
			a.closers = append(a.closers, func() { _ = rc.Close() })
			a.health.Register("redis", observability.PingCheck(rc.Ping, true))
			shared = rc
		}
	}

	// 3. Providers and specialists.
	httpClient := &http.Client{}
	sources := forensics.Sources{Holders: rpc, Authority: rpc}
	var metadata coordinator.MetadataProvider = knownMetadata{}
	if !stub {
		raydium := provider.NewRaydiumClient(cfg.Providers.Raydium, httpClient)
		sources.Liquidity = raydium
		sources.Locks = solana.NewLockChecker(rpc, raydium, cfg.Providers.LockerAccounts)
		metadata = provider.NewMetadataClient(cfg.Providers.Metadata, httpClient, shared)
	}
	a.activity = solana.NewActivityReader(rpc, cfg.Analysis.RPCConcurrency)

	// 4. Event bus and audit trail.
	if cfg.Kafka.Enabled {
		p, err := bus.NewProducer(cfg.Kafka)
		if err != nil {
			log.Warn().Err(err).Msg("Kafka producer unavailable, events will not be published")
		} else {
			a.producer = p
			a.closers = append(a.closers, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := p.Flush(flushCtx); err != nil {
					log.Warn().Err(err).Msg("Kafka flush failed")
				}
				p.Close()
			})
		}
	}
	a.trail = audit.NewTrail(a.producer, cfg.Alerts.AuditBuffer)
	a.health.OnTransition(a.publishHeartbeat)

	// 5. Alerts.
	a.registry = alerts.NewRegistry()
	notifier := alerts.NewNotifier(cfg.Alerts.Notifier, a.registry)
	notifier.AddRecorder(a.trail)
	a.closers = append(a.closers, a.registry.Clear)

	// 6. Coordinator.
	a.coordinator = coordinator.New(cfg.Analysis.Coordinator, coordinator.Deps{
		Holdings:  rpc,
		Activity:  a.activity,
		Metadata:  metadata,
		Forensics: forensics.NewAnalyzer(cfg.Analysis.Forensics, sources),
		Monitor:   monitor.New(cfg.Analysis.Monitor),
		Advisor:   advisor.New(cfg.Analysis.Advisor),
		Sinks:     []coordinator.Sink{a.trail, notifier},
	})

	log.Info().
		Bool("stub", stub).
		Bool("redis", cfg.Redis.Enabled).
		Bool("kafka", a.producer != nil).
		Int("max_tokens", cfg.Analysis.Coordinator.MaxTokens).
		Dur("request_timeout", cfg.Analysis.Coordinator.RequestTimeout).
		Msg("Pipeline initialized")
	return a
}

// Close releases backends in reverse order of creation.
func (a *app) Close() {
	a.health.Stop()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) publishHeartbeat(prev observability.ComponentStatus, cur observability.ComponentHealth) {
	log.Warn().Str("component", cur.Name).Str("from", string(prev)).Str("to", string(cur.Status)).
		Msg("Component health changed")
	if a.producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hb := bus.Heartbeat{
		BaseEvent: bus.NewBaseEvent(a.cfg.General.Service, time.Now()),
		Component: cur.Name,
		Status:    string(cur.Status),
		Uptime:    time.Since(a.started).Seconds(),
	}
	if err := a.producer.PublishJSON(ctx, bus.TopicHeartbeat, cur.Name, hb); err != nil {
		log.Warn().Err(err).Msg("Heartbeat publish failed")
	}
}

// knownMetadata resolves only the built-in token table; used in stub mode
// where the token list cannot be downloaded.
type knownMetadata struct{}

func (knownMetadata) GetTokenMetadata(_ context.Context, mint string) (provider.TokenMetadata, error) {
	if m, ok := provider.KnownToken(mint); ok {
		return m, nil
	}
	return provider.TokenMetadata{}, provider.BadResponse("metadata.known", "mint not in built-in table", nil)
}

// redactEndpoint drops the query string, which usually carries an API key.
func redactEndpoint(endpoint string) string {
	base, _, _ := strings.Cut(endpoint, "?")
	return base
}
