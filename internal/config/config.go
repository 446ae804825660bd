// Package config loads the goalcache application configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-goal-cache/cache"
	"github.com/goliatone/go-goal-cache/model"
)

//go:embed config.sample.yaml
var sampleConfig string

// Sample returns the annotated sample configuration.
func Sample() string {
	return sampleConfig
}

// Remote modes.
const (
	ModeSQL  = "sql"
	ModeHTTP = "http"
)

// CacheConfig holds count cache settings. Durations use Go syntax ("30s").
type CacheConfig struct {
	TTL                string            `yaml:"ttl"`
	KindTTL            map[string]string `yaml:"kind_ttl"`
	Capacity           int               `yaml:"capacity"`
	NumShards          int               `yaml:"num_shards"`
	EvictionPercentage int               `yaml:"eviction_percentage"`
	EvictionInterval   string            `yaml:"eviction_interval"`
}

// IdentityConfig holds identity resolution settings.
type IdentityConfig struct {
	RetryAfter string `yaml:"retry_after"`
}

// RemoteConfig selects and configures the remote store.
type RemoteConfig struct {
	Mode    string `yaml:"mode"`
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// SessionConfig locates the local session store.
type SessionConfig struct {
	Path      string `yaml:"path"`
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the application configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Identity IdentityConfig `yaml:"identity"`
	Remote   RemoteConfig   `yaml:"remote"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	def := cache.DefaultConfig()
	return &Config{
		Cache: CacheConfig{
			TTL:                def.TTL.String(),
			Capacity:           def.Capacity,
			NumShards:          def.NumShards,
			EvictionPercentage: def.EvictionPercentage,
		},
		Identity: IdentityConfig{RetryAfter: "0s"},
		Remote: RemoteConfig{
			Mode:    ModeSQL,
			Driver:  "sqlite3",
			DSN:     "goals.db",
			Timeout: "30s",
		},
		Session: SessionConfig{Path: "session.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

var durationRule = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return errors.New("must be a duration such as 30s")
	}
	return nil
})

// Validate checks field formats. Cache limits are checked by cache.Config.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Cache),
		validation.Field(&c.Identity),
		validation.Field(&c.Remote),
		validation.Field(&c.Logging),
	)
}

// Validate implements validation.Validatable.
func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required, durationRule),
		validation.Field(&c.KindTTL, validation.Each(durationRule)),
		validation.Field(&c.EvictionInterval, durationRule),
	)
}

// Validate implements validation.Validatable.
func (c IdentityConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RetryAfter, durationRule),
	)
}

// Validate implements validation.Validatable.
func (c RemoteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In(ModeSQL, ModeHTTP)),
		validation.Field(&c.Driver, validation.When(c.Mode == ModeSQL, validation.Required, validation.In("sqlite3", "postgres"))),
		validation.Field(&c.DSN, validation.When(c.Mode == ModeSQL, validation.Required)),
		validation.Field(&c.BaseURL, validation.When(c.Mode == ModeHTTP, validation.Required)),
		validation.Field(&c.Timeout, durationRule),
	)
}

// Validate implements validation.Validatable.
func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.In("text", "json")),
	)
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// CacheSettings converts the cache section into a validated cache.Config.
func (c *Config) CacheSettings() (cache.Config, error) {
	out := cache.DefaultConfig()
	out.TTL = parseDuration(c.Cache.TTL)
	if c.Cache.Capacity > 0 {
		out.Capacity = c.Cache.Capacity
	}
	if c.Cache.NumShards > 0 {
		out.NumShards = c.Cache.NumShards
	}
	if c.Cache.EvictionPercentage > 0 {
		out.EvictionPercentage = c.Cache.EvictionPercentage
	}
	out.EvictionInterval = parseDuration(c.Cache.EvictionInterval)

	if len(c.Cache.KindTTL) > 0 {
		out.KindTTL = make(map[model.Kind]time.Duration, len(c.Cache.KindTTL))
		for kind, ttl := range c.Cache.KindTTL {
			out.KindTTL[model.Kind(kind)] = parseDuration(ttl)
		}
	}

	if err := out.Validate(); err != nil {
		return cache.Config{}, fmt.Errorf("config: cache: %w", err)
	}
	return out, nil
}

// RetryAfter returns the identity retry cooldown.
func (c *Config) RetryAfter() time.Duration {
	return parseDuration(c.Identity.RetryAfter)
}

// RemoteTimeout returns the HTTP request timeout.
func (c *Config) RemoteTimeout() time.Duration {
	return parseDuration(c.Remote.Timeout)
}

// Logger builds a slog logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
