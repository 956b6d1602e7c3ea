// Package config loads application configuration from a TOML file and
// supplies defaults for everything left unset.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/memebox/memebox/pkg/errors"
)

// Duration wraps time.Duration so TOML values can be written as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Templates TemplatesConfig `toml:"templates"`
	Fonts     FontsConfig     `toml:"fonts"`
	Layout    LayoutConfig    `toml:"layout"`
	Render    RenderConfig    `toml:"render"`
	Cache     CacheConfig     `toml:"cache"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// TemplatesConfig locates the template catalog.
type TemplatesConfig struct {
	Dir string `toml:"dir"`
}

// FontsConfig configures font resolution.
type FontsConfig struct {
	Family string            `toml:"family"` // default font family
	Files  map[string]string `toml:"files"`  // family -> explicit font file path
}

// LayoutConfig bounds the font size search.
type LayoutConfig struct {
	MinFontSize int `toml:"min_font_size"`
	MaxFontSize int `toml:"max_font_size"`
}

// RenderConfig configures the render pipeline.
type RenderConfig struct {
	Workers     int      `toml:"workers"`      // 0 = number of CPUs
	Timeout     Duration `toml:"timeout"`      // wall-clock budget per caller
	OutputWidth int      `toml:"output_width"` // canonical width fallback
	Watermark   string   `toml:"watermark"`    // default watermark text
}

// CacheConfig configures the render cache.
type CacheConfig struct {
	Backend  string      `toml:"backend"` // memory, redis, file, off
	Capacity int         `toml:"capacity"`
	TTL      Duration    `toml:"ttl"`
	Dir      string      `toml:"dir"` // file backend only
	Redis    RedisConfig `toml:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		Templates: TemplatesConfig{Dir: "templates"},
		Fonts:     FontsConfig{Family: "Impact"},
		Layout:    LayoutConfig{MinFontSize: 7, MaxFontSize: 50},
		Render: RenderConfig{
			Timeout:     Duration{30 * time.Second},
			OutputWidth: 600,
		},
		Cache: CacheConfig{
			Backend:  "memory",
			Capacity: 256,
			TTL:      Duration{time.Hour},
			Redis:    RedisConfig{Addr: "localhost:6379"},
		},
	}
}

// Load reads a TOML configuration file on top of the defaults.
// An empty path returns the defaults unchanged; a missing file is an
// error so typos in --config surface immediately.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "config file %s", path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Layout.MinFontSize < 1 || c.Layout.MaxFontSize < c.Layout.MinFontSize {
		return errors.New(errors.ErrCodeInvalidInput, "layout font size bounds [%d, %d] are invalid",
			c.Layout.MinFontSize, c.Layout.MaxFontSize)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "file", "off":
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}
