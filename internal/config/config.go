package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nexus-trading/walletscope/internal/advisor"
	"github.com/nexus-trading/walletscope/internal/alerts"
	"github.com/nexus-trading/walletscope/internal/api"
	"github.com/nexus-trading/walletscope/internal/bus"
	"github.com/nexus-trading/walletscope/internal/cache"
	"github.com/nexus-trading/walletscope/internal/coordinator"
	"github.com/nexus-trading/walletscope/internal/forensics"
	"github.com/nexus-trading/walletscope/internal/monitor"
	"github.com/nexus-trading/walletscope/internal/provider"
	"github.com/nexus-trading/walletscope/internal/risk"
	"github.com/nexus-trading/walletscope/internal/solana"
	"github.com/nexus-trading/walletscope/internal/tracing"
)

// Config is the root configuration structure for walletscope.
type Config struct {
	General   GeneralConfig    `yaml:"general"`
	Solana    solana.RPCConfig `yaml:"solana"`
	Providers ProvidersConfig  `yaml:"providers"`
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Alerts    AlertsConfig     `yaml:"alerts"`
	Kafka     bus.Config       `yaml:"kafka"`
	Redis     RedisConfig      `yaml:"redis"`
	Server    api.Config       `yaml:"server"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Tracing   tracing.Config   `yaml:"tracing"`
}

type GeneralConfig struct {
	Service     string `yaml:"service"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type ProvidersConfig struct {
	Metadata        provider.MetadataConfig `yaml:"metadata"`
	Raydium         provider.RaydiumConfig  `yaml:"raydium"`
	LockerAccounts  []string                `yaml:"locker_accounts"`
	MemoryCacheKeys int                     `yaml:"memory_cache_keys"` // used when redis is disabled
}

type AnalysisConfig struct {
	Coordinator    coordinator.Config       `yaml:"coordinator"`
	Forensics      forensics.AnalyzerConfig `yaml:"forensics"`
	Monitor        monitor.Config           `yaml:"monitor"`
	Advisor        advisor.Config           `yaml:"advisor"`
	RPCConcurrency int                      `yaml:"rpc_concurrency"` // balance lookups in flight per wallet
}

type AlertsConfig struct {
	Notifier       alerts.NotifierConfig `yaml:"notifier"`
	MaxClients     int                   `yaml:"max_clients"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	AuditBuffer    int                   `yaml:"audit_buffer"`
}

type RedisConfig struct {
	Enabled           bool `yaml:"enabled"`
	cache.RedisConfig `yaml:",inline"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// Default returns a configuration with every section at its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file. A .env file in the working
// directory is loaded first so ${VAR} references resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if !c.Analysis.Advisor.Thresholds.Valid() {
		errs = append(errs, fmt.Errorf("analysis.advisor.thresholds: need 0 <= medium < high <= 100, got %d/%d",
			c.Analysis.Advisor.Thresholds.Medium, c.Analysis.Advisor.Thresholds.High))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers: required when kafka is enabled"))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint: required when tracing is enabled"))
	}
	switch strings.ToLower(c.General.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("general.log_format: unknown format %q", c.General.LogFormat))
	}
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.General.Service == "" {
		cfg.General.Service = "walletscope"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}

	rpc := solana.DefaultRPCConfig()
	if cfg.Solana.Endpoint == "" {
		cfg.Solana.Endpoint = rpc.Endpoint
	}
	if cfg.Solana.Timeout == 0 {
		cfg.Solana.Timeout = rpc.Timeout
	}
	if cfg.Solana.MaxRetries == 0 {
		cfg.Solana.MaxRetries = rpc.MaxRetries
	}
	if cfg.Solana.RateLimitRPS == 0 {
		cfg.Solana.RateLimitRPS = rpc.RateLimitRPS
	}
	if cfg.Solana.MaxRateLimitWait == 0 {
		cfg.Solana.MaxRateLimitWait = rpc.MaxRateLimitWait
	}

	meta := provider.DefaultMetadataConfig()
	if cfg.Providers.Metadata.TokenListURL == "" {
		cfg.Providers.Metadata.TokenListURL = meta.TokenListURL
	}
	if cfg.Providers.Metadata.Timeout == 0 {
		cfg.Providers.Metadata.Timeout = meta.Timeout
	}
	if cfg.Providers.Metadata.CacheTTL == 0 {
		cfg.Providers.Metadata.CacheTTL = meta.CacheTTL
	}
	if cfg.Providers.Metadata.ListRefresh == 0 {
		cfg.Providers.Metadata.ListRefresh = meta.ListRefresh
	}
	ray := provider.DefaultRaydiumConfig()
	if cfg.Providers.Raydium.PoolListURL == "" {
		cfg.Providers.Raydium.PoolListURL = ray.PoolListURL
	}
	if cfg.Providers.Raydium.Timeout == 0 {
		cfg.Providers.Raydium.Timeout = ray.Timeout
	}
	if cfg.Providers.Raydium.CacheTTL == 0 {
		cfg.Providers.Raydium.CacheTTL = ray.CacheTTL
	}
	if cfg.Providers.MemoryCacheKeys == 0 {
		cfg.Providers.MemoryCacheKeys = 10000
	}

	applyAnalysisDefaults(&cfg.Analysis)

	if cfg.Alerts.Notifier == (alerts.NotifierConfig{}) {
		cfg.Alerts.Notifier = alerts.DefaultNotifierConfig()
	}
	if cfg.Alerts.Notifier.MinRating == "" {
		cfg.Alerts.Notifier.MinRating = risk.RatingHigh
	}
	if cfg.Alerts.MaxClients == 0 {
		cfg.Alerts.MaxClients = 100
	}
	if cfg.Alerts.AuditBuffer == 0 {
		cfg.Alerts.AuditBuffer = 1000
	}

	kafka := bus.DefaultConfig()
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = kafka.Brokers
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = kafka.ClientID
	}
	if cfg.Kafka.Linger == 0 {
		cfg.Kafka.Linger = kafka.Linger
	}
	if cfg.Kafka.MaxBufferedRecords == 0 {
		cfg.Kafka.MaxBufferedRecords = kafka.MaxBufferedRecords
	}
	if cfg.Kafka.BatchMaxBytes == 0 {
		cfg.Kafka.BatchMaxBytes = kafka.BatchMaxBytes
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = kafka.ConsumerGroup
	}

	redis := cache.DefaultRedisConfig()
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = redis.Addr
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = redis.Prefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = redis.WriteTimeout
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = redis.PoolSize
	}

	server := api.DefaultConfig()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = server.Addr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = server.ReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = server.ShutdownTimeout
	}
	if cfg.Metrics.HealthInterval == 0 {
		cfg.Metrics.HealthInterval = 30 * time.Second
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.General.Service
	}
}

func applyAnalysisDefaults(a *AnalysisConfig) {
	coord := coordinator.DefaultConfig()
	if a.Coordinator.MaxTokens == 0 {
		a.Coordinator.MaxTokens = coord.MaxTokens
	}
	if a.Coordinator.ActivityLimit == 0 {
		a.Coordinator.ActivityLimit = coord.ActivityLimit
	}
	if a.Coordinator.RequestTimeout == 0 {
		a.Coordinator.RequestTimeout = coord.RequestTimeout
	}
	if a.Coordinator.DefaultTokenRisk == 0 {
		a.Coordinator.DefaultTokenRisk = coord.DefaultTokenRisk
	}

	fx := forensics.DefaultAnalyzerConfig()
	if a.Forensics.ConcentrationFlagPct == 0 {
		a.Forensics.ConcentrationFlagPct = fx.ConcentrationFlagPct
	}
	if len(a.Forensics.Buzzwords) == 0 {
		a.Forensics.Buzzwords = fx.Buzzwords
	}
	if a.Forensics.MaxConcurrency == 0 {
		a.Forensics.MaxConcurrency = fx.MaxConcurrency
	}
	if a.Forensics.ExplorerBaseURL == "" {
		a.Forensics.ExplorerBaseURL = fx.ExplorerBaseURL
	}
	if a.Forensics.Rules.ConcentrationPct == 0 && len(a.Forensics.Rules.ScoredFlags) == 0 {
		a.Forensics.Rules = fx.Rules
	}

	if a.Monitor.LargeOutflowSOL == 0 {
		a.Monitor = monitor.DefaultConfig()
	}

	adv := advisor.DefaultConfig()
	if a.Advisor.Thresholds.High == 0 && a.Advisor.Thresholds.Medium == 0 {
		a.Advisor.Thresholds = adv.Thresholds
	}
	if a.Advisor.TxContribution == 0 {
		a.Advisor.TxContribution = adv.TxContribution
	}
	if a.RPCConcurrency == 0 {
		a.RPCConcurrency = 8
	}
}
