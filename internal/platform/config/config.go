// Package config loads service configuration from environment variables so
// main stays lean.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	// HTTP server
	Addr string `koanf:"addr"`

	// Document store (client records + domain index). Empty URL selects the
	// in-memory stores, which is only suitable for development and tests.
	RedisURL string `koanf:"redis_url"`

	// Geolocation range store. Empty URL leaves the resolver in
	// permanent-fallback mode.
	GeoDatabaseURL  string        `koanf:"geo_database_url"`
	GeoQueryTimeout time.Duration `koanf:"geo_query_timeout"`
	GeoCacheSize    int           `koanf:"geo_cache_size"`
	GeoCacheTTL     time.Duration `koanf:"geo_cache_ttl"`

	// Pixel template
	TemplatePath       string        `koanf:"template_path"`
	TemplateTTL        time.Duration `koanf:"template_ttl"`
	CollectionEndpoint string        `koanf:"collection_endpoint"`

	// Store round-trip budget for domain index and client record reads.
	StoreTimeout time.Duration `koanf:"store_timeout"`

	// Rate limiting. Each category carries an independent budget.
	RateLimitDisabled        bool          `koanf:"ratelimit_disabled"`
	RateLimitCleanupInterval time.Duration `koanf:"ratelimit_cleanup_interval"`
	RateLimitAdminPerMin     int           `koanf:"ratelimit_admin_per_min"`
	RateLimitConfigPerMin    int           `koanf:"ratelimit_config_per_min"`
	RateLimitPixelPerMin     int           `koanf:"ratelimit_pixel_per_min"`
	RateLimitCollectPerMin   int           `koanf:"ratelimit_collect_per_min"`

	// Operational
	LogLevel string `koanf:"log_level"`
}

// defaults sets sensible default values.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"addr":                       ":8080",
		"geo_query_timeout":          "2s",
		"geo_cache_size":             10000,
		"geo_cache_ttl":              "1h",
		"template_path":              "assets/tracking.js",
		"template_ttl":               "1h",
		"collection_endpoint":        "/collect",
		"store_timeout":              "3s",
		"ratelimit_disabled":         false,
		"ratelimit_cleanup_interval": "5m",
		"ratelimit_admin_per_min":    30,
		"ratelimit_config_per_min":   60,
		"ratelimit_pixel_per_min":    120,
		"ratelimit_collect_per_min":  300,
		"log_level":                  "info",
	}
}

// rawProvider feeds a flat defaults map into koanf.
type rawProvider struct {
	data map[string]interface{}
}

func (p *rawProvider) Read() (map[string]interface{}, error) { return p.data, nil }

func (p *rawProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("rawProvider does not support ReadBytes")
}

// Load reads configuration from PIXELGATE_* environment variables.
func Load() (*Config, error) {
	// Use "." as delimiter so env vars with "_" in their names are treated
	// as flat keys matching the koanf struct tags.
	k := koanf.New(".")

	if err := k.Load(&rawProvider{data: defaults()}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("PIXELGATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PIXELGATE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that koanf cannot express.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.TemplatePath == "" {
		return errors.New("template_path must not be empty")
	}
	if c.TemplateTTL <= 0 {
		return errors.New("template_ttl must be positive")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store_timeout must be positive")
	}
	if c.GeoQueryTimeout <= 0 {
		return errors.New("geo_query_timeout must be positive")
	}
	if c.GeoCacheSize <= 0 {
		return errors.New("geo_cache_size must be positive")
	}
	for name, v := range map[string]int{
		"ratelimit_admin_per_min":   c.RateLimitAdminPerMin,
		"ratelimit_config_per_min":  c.RateLimitConfigPerMin,
		"ratelimit_pixel_per_min":   c.RateLimitPixelPerMin,
		"ratelimit_collect_per_min": c.RateLimitCollectPerMin,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
