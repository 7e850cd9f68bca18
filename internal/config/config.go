// Package config loads and validates all runtime configuration for Routex.
//
// Configuration is read from environment variables (preferred for
// containers) or from a routex.config.json file on a well-known search path
// (spec §6). Environment variables take precedence over the JSON file.
// Provider credentials are NOT configured here — they live in the Store as
// Channel rows, created/edited at runtime via /api/channels.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	LogLevel string

	// DataDir is where the embedded SQLite database file lives.
	DataDir string

	// Locale selects the i18n locale for admin API text. One of: en, zh-CN.
	Locale string

	// CORSOrigins is the list of allowed CORS origins. ["*"] allows any origin.
	CORSOrigins []string

	// LoadBalanceStrategy is the initial C5 LoadBalancer strategy.
	// One of: priority, round_robin, weighted, least_used.
	LoadBalanceStrategy string

	RateLimit      RateLimitConfig
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	CacheWarmer    CacheWarmerConfig
	Tracer         TracerConfig

	// DashboardPassword gates the admin API when non-empty.
	DashboardPassword string
	// MasterPassword gates destructive admin operations (import with
	// replaceExisting, channel secret export) when non-empty.
	MasterPassword string
	// EncryptionSalt seeds at-rest encryption of Channel.APIKey values.
	EncryptionSalt string

	// Redis, when URL is non-empty, backs the inbound rate limiter. Nothing
	// else uses it; the LoadBalancer's selection cache is in-process only.
	Redis RedisConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL string
}

// RateLimitConfig controls the ambient inbound rate limiter
// (internal/ratelimit, repurposed from the teacher's per-workspace RPM
// limiter — see DESIGN.md).
type RateLimitConfig struct {
	RPMLimit int
}

// RetryConfig seeds C4's retry.Config (spec §4.4 defaults).
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// CircuitBreakerConfig seeds C6's breaker.Config.
type CircuitBreakerConfig struct {
	ErrorThreshold int
	ResetTimeout   time.Duration
}

// CacheWarmerConfig controls C10.
type CacheWarmerConfig struct {
	WarmOnStartup bool
	IntervalMs    int
}

// TracerConfig controls C3's in-memory span store.
type TracerConfig struct {
	MaxSpans int
}

// Load reads configuration from environment variables and (optionally) from
// routex.config.json on a well-known search path.
func Load() (*Config, error) {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("routex.config")
	v.SetConfigType("json")
	for _, dir := range searchPaths() {
		v.AddConfigPath(dir)
	}
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATA_DIR", defaultDataDir())
	v.SetDefault("LOCALE", "en")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("LOAD_BALANCE_STRATEGY", "priority")

	v.SetDefault("RATE_LIMIT_RPM", 0)

	v.SetDefault("RETRY_MAX_RETRIES", 3)
	v.SetDefault("RETRY_BASE_DELAY", "1s")
	v.SetDefault("RETRY_MAX_DELAY", "30s")
	v.SetDefault("RETRY_EXPONENTIAL_BASE", 2.0)

	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_RESET_TIMEOUT", "60s")

	v.SetDefault("CACHE_WARM_ON_STARTUP", true)
	v.SetDefault("CACHE_WARM_INTERVAL_MS", 5*60*1000)

	v.SetDefault("TRACER_MAX_SPANS", 10000)

	cfg := &Config{
		Port:                v.GetInt("PORT"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		DataDir:             v.GetString("DATA_DIR"),
		Locale:              v.GetString("LOCALE"),
		CORSOrigins:         v.GetStringSlice("CORS_ORIGINS"),
		LoadBalanceStrategy: v.GetString("LOAD_BALANCE_STRATEGY"),

		RateLimit: RateLimitConfig{RPMLimit: v.GetInt("RATE_LIMIT_RPM")},

		Retry: RetryConfig{
			MaxRetries:      v.GetInt("RETRY_MAX_RETRIES"),
			BaseDelay:       v.GetDuration("RETRY_BASE_DELAY"),
			MaxDelay:        v.GetDuration("RETRY_MAX_DELAY"),
			ExponentialBase: v.GetFloat64("RETRY_EXPONENTIAL_BASE"),
		},

		CircuitBreaker: CircuitBreakerConfig{
			ErrorThreshold: v.GetInt("CB_ERROR_THRESHOLD"),
			ResetTimeout:   v.GetDuration("CB_RESET_TIMEOUT"),
		},

		CacheWarmer: CacheWarmerConfig{
			WarmOnStartup: v.GetBool("CACHE_WARM_ON_STARTUP"),
			IntervalMs:    v.GetInt("CACHE_WARM_INTERVAL_MS"),
		},

		Tracer: TracerConfig{MaxSpans: v.GetInt("TRACER_MAX_SPANS")},

		DashboardPassword: v.GetString("DASHBOARD_PASSWORD"),
		MasterPassword:    v.GetString("MASTER_PASSWORD"),
		EncryptionSalt:    v.GetString("ENCRYPTION_SALT"),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}
	switch c.Locale {
	case "en", "zh-CN":
	default:
		return fmt.Errorf("config: invalid LOCALE %q; must be one of: en, zh-CN", c.Locale)
	}
	switch c.LoadBalanceStrategy {
	case "priority", "round_robin", "weighted", "least_used":
	default:
		return fmt.Errorf("config: invalid LOAD_BALANCE_STRATEGY %q", c.LoadBalanceStrategy)
	}
	if c.CircuitBreaker.ErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be >= 1, got %d", c.CircuitBreaker.ErrorThreshold)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: RETRY_MAX_RETRIES must be >= 0, got %d", c.Retry.MaxRetries)
	}
	return nil
}

// searchPaths returns the well-known directories checked for
// routex.config.json, current directory first.
func searchPaths() []string {
	return []string{".", defaultDataDir(), "/etc/routex"}
}

// defaultDataDir applies spec §6's platform-hint detection: recognized
// cloud runtimes default to /data, otherwise ./data.
func defaultDataDir() string {
	cloudHints := []string{"CLAW_RUNTIME", "RAILWAY_ENVIRONMENT", "FLY_APP_NAME", "RENDER"}
	for _, h := range cloudHints {
		if os.Getenv(h) != "" {
			return "/data"
		}
	}
	return "./data"
}
