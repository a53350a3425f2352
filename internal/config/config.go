package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wyhe/prism/internal/core"
)

type Config struct {
	Cache     CacheConfig               `mapstructure:"cache"`
	Archive   ArchiveConfig             `mapstructure:"archive"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Fetch     FetchConfig               `mapstructure:"fetch"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Log       LogConfig                 `mapstructure:"log"`
}

// CacheConfig selects and configures the hot cache backend.
type CacheConfig struct {
	Backend string      `mapstructure:"backend"` // "memory" or "redis"
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ArchiveConfig configures cold storage for closed daily history.
type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// ProviderConfig configures one adapter. Priority is the global rank used
// when building per-market fallback chains; lower wins.
type ProviderConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	APIKey        string  `mapstructure:"api_key"`
	Priority      int     `mapstructure:"priority"`
	RateLimit     float64 `mapstructure:"rate_limit"` // requests per second
	Burst         int     `mapstructure:"burst"`
	MaxConcurrent int     `mapstructure:"max_concurrent"`
}

// FetchConfig tunes the fetch pipeline.
type FetchConfig struct {
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults. Every keyless provider
// is enabled out of the box; tushare, finnhub and alphavantage wake up when
// a key appears.
func Defaults() *Config {
	return &Config{
		Cache: CacheConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "prism",
			},
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "localfs",
			Path:    "./archive",
		},
		Providers: map[string]ProviderConfig{
			"tushare":      {Priority: 0},
			"eastmoney":    {Enabled: true, Priority: 1},
			"sina":         {Enabled: true, Priority: 2},
			"tencent":      {Enabled: true, Priority: 3},
			"yahoo":        {Enabled: true, Priority: 4},
			"finnhub":      {Priority: 5},
			"alphavantage": {Priority: 6},
		},
		Fetch: FetchConfig{
			AttemptTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9090",
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Merge layers file values over the defaults: providers present in the file
// replace the default entry wholesale, everything else falls back.
func Merge(defaults, loaded *Config) *Config {
	out := *loaded
	if out.Cache.Backend == "" {
		out.Cache.Backend = defaults.Cache.Backend
	}
	if out.Cache.Redis.Addr == "" {
		out.Cache.Redis = defaults.Cache.Redis
	}
	if out.Archive.Type == "" {
		out.Archive = defaults.Archive
	}
	if out.Providers == nil {
		out.Providers = defaults.Providers
	} else {
		for name, def := range defaults.Providers {
			if _, ok := out.Providers[name]; !ok {
				out.Providers[name] = def
			}
		}
	}
	if out.Fetch.AttemptTimeout <= 0 {
		out.Fetch.AttemptTimeout = defaults.Fetch.AttemptTimeout
	}
	if out.Metrics.Listen == "" {
		out.Metrics = defaults.Metrics
	}
	if out.Log.Level == "" {
		out.Log.Level = defaults.Log.Level
	}
	if out.Log.Format == "" {
		out.Log.Format = defaults.Log.Format
	}
	return &out
}

var keyedProviders = map[string]bool{
	"tushare":      true,
	"finnhub":      true,
	"alphavantage": true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("redis addr required when cache backend is redis"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required for localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("s3 bucket required for s3 archive"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown archive type %q", c.Archive.Type))
		}
	}

	for name, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		if keyedProviders[name] && p.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("%s api_key required when enabled", name))
		}
		if p.RateLimit < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s rate_limit cannot be negative, got %f", name, p.RateLimit))
		}
		if p.MaxConcurrent < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s max_concurrent cannot be negative, got %d", name, p.MaxConcurrent))
		}
	}

	enabled := 0
	for _, p := range c.Providers {
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("at least one provider must be enabled"))
	}

	return nil
}
