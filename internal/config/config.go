// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for
// zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Engines     EnginesConfig     `yaml:"engines"`
	Cache       CacheConfig       `yaml:"cache"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Routing     RoutingConfig     `yaml:"routing"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
	HealthCheck HealthCheckConfig `yaml:"healthcheck"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// EnginesConfig holds both engine adapter endpoints.
type EnginesConfig struct {
	Simple  EngineConfig `yaml:"simple"`
	Complex EngineConfig `yaml:"complex"`
}

// EngineConfig defines one engine adapter connection.
type EngineConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	// Complex engine only.
	SearchFields []string `yaml:"search_fields"`
	FacetFields  []string `yaml:"facet_fields"`
}

// CacheConfig holds both cache tiers and the TTL policy.
type CacheConfig struct {
	L1  L1CacheConfig   `yaml:"l1"`
	L2  L2CacheConfig   `yaml:"l2"`
	TTL TTLPolicyConfig `yaml:"ttl"`
}

// L1CacheConfig configures the in-process tier.
type L1CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// L2CacheConfig configures the optional shared tier.
type L2CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TTLPolicyConfig configures per-classification TTLs.
type TTLPolicyConfig struct {
	Simple               time.Duration `yaml:"simple"`
	Short                time.Duration `yaml:"short"`
	SmallResult          time.Duration `yaml:"small_result"`
	Suggest              time.Duration `yaml:"suggest"`
	SmallResultThreshold int           `yaml:"small_result_threshold"`
}

// ClassifierConfig holds classification thresholds.
type ClassifierConfig struct {
	SimpleThreshold  float64 `yaml:"simple_threshold"`
	ComplexThreshold float64 `yaml:"complex_threshold"`
	LongQueryChars   int     `yaml:"long_query_chars"`
	LargePageSize    int     `yaml:"large_page_size"`
	SimpleBaseMS     int64   `yaml:"simple_base_ms"`
	HybridBaseMS     int64   `yaml:"hybrid_base_ms"`
	ComplexBaseMS    int64   `yaml:"complex_base_ms"`
}

// DispatchConfig holds deadline and fallback settings.
type DispatchConfig struct {
	DefaultTimeoutMS      int      `yaml:"default_timeout_ms"`
	MinTimeoutMS          int      `yaml:"min_timeout_ms"`
	MaxTimeoutMS          int      `yaml:"max_timeout_ms"`
	HybridOverfetchFactor int      `yaml:"hybrid_overfetch_factor"`
	HybridFilterFields    []string `yaml:"hybrid_filter_fields"`
	FallbackTimeoutMS     int      `yaml:"fallback_timeout_ms"`
	FallbackPageSize      int      `yaml:"fallback_page_size"`
	CoalesceMisses        *bool    `yaml:"coalesce_misses"`
}

// RoutingConfig maps tenants to indexes.
type RoutingConfig struct {
	SharedIndex      string                  `yaml:"shared_index"`
	ShardCount       int                     `yaml:"shard_count"`
	ReplicaCount     int                     `yaml:"replica_count"`
	DedicatedTenants []DedicatedTenantConfig `yaml:"dedicated_tenants"`
}

// DedicatedTenantConfig is one per-tenant index override.
type DedicatedTenantConfig struct {
	TenantID     string `yaml:"tenant_id"`
	IndexName    string `yaml:"index_name"`
	ShardCount   int    `yaml:"shard_count"`
	ReplicaCount int    `yaml:"replica_count"`
}

// AuthConfig holds claim-verification settings.
type AuthConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
}

// RateLimitConfig defines per-tenant rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	BurstSize         int  `yaml:"burst_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// HealthCheckConfig controls the background prober.
type HealthCheckConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	coalesce := true
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 * 1024 * 1024,
		},
		Engines: EnginesConfig{
			Simple: EngineConfig{
				Timeout:    5 * time.Second,
				MaxRetries: 2,
			},
			Complex: EngineConfig{
				Timeout:    5 * time.Second,
				MaxRetries: 2,
			},
		},
		Cache: CacheConfig{
			L1: L1CacheConfig{
				MaxEntries: 10000,
				DefaultTTL: 5 * time.Minute,
			},
			TTL: TTLPolicyConfig{
				Simple:               5 * time.Minute,
				Short:                2 * time.Minute,
				SmallResult:          10 * time.Minute,
				Suggest:              5 * time.Minute,
				SmallResultThreshold: 5,
			},
		},
		Dispatch: DispatchConfig{
			DefaultTimeoutMS:      700,
			MinTimeoutMS:          50,
			MaxTimeoutMS:          2000,
			HybridOverfetchFactor: 3,
			HybridFilterFields:    []string{"entity", "status", "category"},
			FallbackTimeoutMS:     200,
			FallbackPageSize:      10,
			CoalesceMisses:        &coalesce,
		},
		Routing: RoutingConfig{
			SharedIndex:  "search-shared",
			ShardCount:   3,
			ReplicaCount: 1,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "searchmux",
			SampleRate:  1.0,
			Insecure:    true,
		},
		HealthCheck: HealthCheckConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Engines.Simple.BaseURL == "" {
		return fmt.Errorf("engines.simple.base_url is required")
	}
	if c.Engines.Complex.BaseURL == "" {
		return fmt.Errorf("engines.complex.base_url is required")
	}
	for name, e := range map[string]EngineConfig{
		"simple": c.Engines.Simple, "complex": c.Engines.Complex,
	} {
		if e.Timeout < 0 {
			return fmt.Errorf("engines.%s: timeout cannot be negative", name)
		}
		if e.MaxRetries < 0 {
			return fmt.Errorf("engines.%s: max_retries cannot be negative", name)
		}
	}

	if c.Cache.L1.MaxEntries < 0 {
		return fmt.Errorf("cache.l1.max_entries cannot be negative")
	}
	if c.Cache.L2.Enabled && c.Cache.L2.Addr == "" {
		return fmt.Errorf("cache.l2.addr is required when l2 is enabled")
	}

	if c.Dispatch.MinTimeoutMS > 0 && c.Dispatch.MaxTimeoutMS > 0 &&
		c.Dispatch.MinTimeoutMS > c.Dispatch.MaxTimeoutMS {
		return fmt.Errorf("dispatch.min_timeout_ms exceeds max_timeout_ms")
	}
	if c.Dispatch.HybridOverfetchFactor < 0 {
		return fmt.Errorf("dispatch.hybrid_overfetch_factor cannot be negative")
	}

	if c.Classifier.SimpleThreshold > 0 && c.Classifier.ComplexThreshold > 0 &&
		c.Classifier.SimpleThreshold >= c.Classifier.ComplexThreshold {
		return fmt.Errorf("classifier.simple_threshold must be below complex_threshold")
	}

	for i, t := range c.Routing.DedicatedTenants {
		if t.TenantID == "" {
			return fmt.Errorf("routing.dedicated_tenants[%d]: tenant_id is required", i)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive when enabled")
	}

	return nil
}

// CoalesceMisses resolves the optional flag with its default.
func (d DispatchConfig) Coalesce() bool {
	if d.CoalesceMisses == nil {
		return true
	}
	return *d.CoalesceMisses
}
