package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-goal-cache/internal/cacheinfra"
	"github.com/goliatone/go-goal-cache/model"
)

// DefaultTTL is how long a fetched count stays fresh unless a kind overrides it.
const DefaultTTL = 30 * time.Second

// Config exposes count cache configuration options.
type Config struct {
	// TTL applies to every kind without an entry in KindTTL.
	TTL time.Duration
	// KindTTL overrides TTL per count kind.
	KindTTL            map[model.Kind]time.Duration
	Capacity           int
	NumShards          int
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.KindTTL, validation.Each(validation.Min(time.Millisecond))),
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return err
	}

	for _, kind := range model.Kinds() {
		if err := c.toInternal(kind).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TTLFor returns the freshness window for kind.
func (c Config) TTLFor(kind model.Kind) time.Duration {
	if ttl, ok := c.KindTTL[kind]; ok && ttl > 0 {
		return ttl
	}
	return c.TTL
}

func (c Config) toInternal(kind model.Kind) cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTLFor(kind),
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		TTL:                cfg.TTL,
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
