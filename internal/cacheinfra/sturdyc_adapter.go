package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for one sturdyc backed count store.
type Config struct {
	// Capacity defines the maximum number of entries that the store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 64
	NumShards int

	// TTL is how long a written count stays fresh.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns the per-kind defaults used by the count cache.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                30 * time.Second,
		EvictionPercentage: 10,
	}
}

// Clock is the time source used to stamp expiry. sturdyc.TestClock satisfies it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ToSturdycOptions converts the optional parts of Config to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Entry is a cached count and the instant it stops being fresh.
type Entry struct {
	Count     int
	ExpiresAt time.Time
}

// FreshAt reports whether the entry is still usable at now.
func (e Entry) FreshAt(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// CountStore wraps a sturdyc client holding count entries for a single kind.
type CountStore struct {
	client *sturdyc.Client[Entry]
	clock  Clock
	ttl    time.Duration
}

// NewCountStore validates cfg and creates the store. When clock also
// implements sturdyc.Clock it is handed to sturdyc so both agree on expiry.
func NewCountStore(cfg Config, clock Clock) (*CountStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := cfg.ToSturdycOptions()
	if clock == nil {
		clock = realClock{}
	} else if sc, ok := clock.(sturdyc.Clock); ok {
		options = append(options, sturdyc.WithClock(sc))
	}

	client := sturdyc.New[Entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		options...,
	)

	return &CountStore{client: client, clock: clock, ttl: cfg.TTL}, nil
}

// TTL returns the freshness window for writes.
func (s *CountStore) TTL() time.Duration {
	return s.ttl
}

// Now returns the store's notion of the current time.
func (s *CountStore) Now() time.Time {
	return s.clock.Now()
}

// GetFresh returns the entry for key if it has not expired.
func (s *CountStore) GetFresh(key string) (Entry, bool) {
	entry, ok := s.client.Get(key)
	if !ok || !entry.FreshAt(s.clock.Now()) {
		return Entry{}, false
	}
	return entry, true
}

// Set overwrites the entry for key with a full TTL.
func (s *CountStore) Set(key string, count int) Entry {
	entry := Entry{Count: count, ExpiresAt: s.clock.Now().Add(s.ttl)}
	s.client.Set(key, entry)
	return entry
}

// Put stores entry as-is, keeping its expiry.
func (s *CountStore) Put(key string, entry Entry) {
	s.client.Set(key, entry)
}

// Delete removes a single entry.
func (s *CountStore) Delete(key string) {
	s.client.Delete(key)
}

// Keys lists every key currently held, fresh or not.
func (s *CountStore) Keys() []string {
	return s.client.ScanKeys()
}

// Size returns the number of held entries.
func (s *CountStore) Size() int {
	return s.client.Size()
}
