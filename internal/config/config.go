// Package config decodes the external configuration surface named in spec
// §6 ({cache, executor}) from a loosely-typed map, the way the rest of the
// corpus decodes stage/plugin configs: mitchellh/mapstructure over a plain
// map[string]interface{}, rather than a bespoke hand-rolled walker.
package config

import (
	"github.com/mitchellh/mapstructure"

	"github.com/cyw0ng95/infraql/internal/cache"
)

// CacheConfig mirrors spec §6's cache surface.
type CacheConfig struct {
	Enabled          bool             `mapstructure:"enabled"`
	DefaultTTLMillis int64            `mapstructure:"defaultTTLMillis"`
	MaxSize          int              `mapstructure:"maxSize"`
	PerTableTTL      map[string]int64 `mapstructure:"perTableTTL"`
}

// ExecutorConfig mirrors spec §6's executor surface.
type ExecutorConfig struct {
	DefaultMaxResults int `mapstructure:"defaultMaxResults"`
}

// Config is the full core-facing configuration surface. Plugin-specific
// credentials/regions/contexts are deliberately excluded — those pass
// through the registry opaquely as each plugin's own config argument
// (spec §6).
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Executor ExecutorConfig `mapstructure:"executor"`
}

// Default returns the suggested defaults from spec §4.5/§4.6: a 5-minute
// default TTL, a 10,000-row truncation cap, caching enabled.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Enabled:          true,
			DefaultTTLMillis: cache.DefaultTTL.Milliseconds(),
			MaxSize:          10000,
		},
		Executor: ExecutorConfig{
			DefaultMaxResults: 10000,
		},
	}
}

// Decode builds a Config from a loosely-typed map, such as one parsed from
// YAML/JSON by an external loader (out of scope per spec §1). Zero-valued
// fields are supplemented from Default().
func Decode(raw map[string]interface{}) (Config, error) {
	cfg := Default()
	if raw == nil {
		return cfg, nil
	}
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CacheConfigFor adapts a decoded CacheConfig into the cache package's own
// Config shape.
func (c Config) CacheConfigFor() cache.Config {
	return cache.Config{
		Enabled:          c.Cache.Enabled,
		DefaultTTLMillis: c.Cache.DefaultTTLMillis,
		MaxSize:          c.Cache.MaxSize,
		PerTableTTL:      c.Cache.PerTableTTL,
	}
}
