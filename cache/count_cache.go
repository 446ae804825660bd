package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-goal-cache/internal/cacheinfra"
	"github.com/goliatone/go-goal-cache/model"
)

// Entry is a cached count with its expiry instant.
type Entry = cacheinfra.Entry

// Clock supplies the current time for expiry checks. sturdyc.TestClock satisfies it.
type Clock = cacheinfra.Clock

// CountCacheOption configures a CountCache.
type CountCacheOption func(*countCacheOptions)

type countCacheOptions struct {
	clock Clock
}

// WithClock overrides the time source for every kind.
func WithClock(clock Clock) CountCacheOption {
	return func(o *countCacheOptions) {
		o.clock = clock
	}
}

// CountCache keeps one TTL store per count kind. Entries are fresh while
// now < ExpiresAt; stale entries are ignored by readers and overwritten by the
// next successful fetch.
type CountCache struct {
	mu     sync.Mutex
	stores map[model.Kind]*cacheinfra.CountStore
}

// NewCountCache creates a store for every kind in model.Kinds.
func NewCountCache(cfg Config, opts ...CountCacheOption) (*CountCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &countCacheOptions{}
	for _, opt := range opts {
		opt(o)
	}

	stores := make(map[model.Kind]*cacheinfra.CountStore, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		store, err := cacheinfra.NewCountStore(cfg.toInternal(kind), o.clock)
		if err != nil {
			return nil, fmt.Errorf("count store %s: %w", kind, err)
		}
		stores[kind] = store
	}

	return &CountCache{stores: stores}, nil
}

func (c *CountCache) store(kind model.Kind) *cacheinfra.CountStore {
	store, ok := c.stores[kind]
	if !ok {
		panic(fmt.Sprintf("cache: unknown count kind %q", kind))
	}
	return store
}

// GetFresh returns the entry for id only if it has not expired.
func (c *CountCache) GetFresh(kind model.Kind, id string) (Entry, bool) {
	return c.store(kind).GetFresh(id)
}

// Set stores count for id with expiry now + ttl(kind).
func (c *CountCache) Set(kind model.Kind, id string, count int) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(kind).Set(id, count)
}

// Adjust applies delta to a fresh entry without extending its expiry. The
// result is floored at zero. Missing or stale entries are left alone.
func (c *CountCache) Adjust(kind model.Kind, id string, delta int) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	store := c.store(kind)
	entry, ok := store.GetFresh(id)
	if !ok {
		return Entry{}, false
	}

	entry.Count = max(entry.Count+delta, 0)
	store.Put(id, entry)
	return entry, true
}

// Invalidate drops the entry for id so the next read goes to the source.
func (c *CountCache) Invalidate(kind model.Kind, id string) {
	c.store(kind).Delete(id)
}

// TTL returns the freshness window for kind.
func (c *CountCache) TTL(kind model.Kind) time.Duration {
	return c.store(kind).TTL()
}

// Size returns the number of held entries for kind, fresh or not.
func (c *CountCache) Size(kind model.Kind) int {
	return c.store(kind).Size()
}
