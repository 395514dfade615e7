package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Chainlist ChainlistConfig `mapstructure:"chainlist"`
	Chains    []ChainConfig   `mapstructure:"chains"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// RPCConfig holds manager-wide defaults for outbound JSON-RPC requests and the
// background health sweep. Per-chain settings (ChainConfig) override the request
// defaults where present.
type RPCConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	RateLimitCooldown   time.Duration `mapstructure:"rate_limit_cooldown"`
	MaxConcurrentProbes int           `mapstructure:"max_concurrent_probes"`
}

// CacheConfig holds settings for the in-memory caching layer.
type CacheConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// ChainlistConfig holds configuration for the remote Chainlist fallback source.
type ChainlistConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ChainConfig describes one statically configured chain: its candidate RPC
// endpoints in priority order, plus optional per-chain request overrides.
type ChainConfig struct {
	ChainID       int64         `mapstructure:"chain_id"`
	Name          string        `mapstructure:"name"`
	RPCURLs       []string      `mapstructure:"rpc_urls"`
	RPCTimeout    time.Duration `mapstructure:"rpc_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "rpc-failover")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("rpc.timeout", "10s")
	v.SetDefault("rpc.retry_attempts", 3)
	v.SetDefault("rpc.retry_delay", "1s")
	v.SetDefault("rpc.health_check_interval", "60s")
	v.SetDefault("rpc.rate_limit_cooldown", "5m")
	v.SetDefault("rpc.max_concurrent_probes", 5)
	v.SetDefault("cache.default_expiration", "30m")
	v.SetDefault("cache.cleanup_interval", "1h")
	v.SetDefault("chainlist.enabled", false)
	v.SetDefault("chainlist.url", "https://chainid.network/chains.json")
	v.SetDefault("chainlist.cache_ttl", "30m")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Printf("Warning: Config file not found in %s or '.', using defaults/env vars\n", configPath)
		}
	}

	v.SetEnvPrefix("RPC_FAILOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func (c RPCConfig) GetTimeout() time.Duration {
	return c.Timeout
}

func (c RPCConfig) GetRetryDelay() time.Duration {
	return c.RetryDelay
}

func (c RPCConfig) GetHealthCheckInterval() time.Duration {
	return c.HealthCheckInterval
}

func (c RPCConfig) GetRateLimitCooldown() time.Duration {
	return c.RateLimitCooldown
}

func (c CacheConfig) GetDefaultExpiration() time.Duration {
	return c.DefaultExpiration
}

func (c CacheConfig) GetCleanupInterval() time.Duration {
	return c.CleanupInterval
}
