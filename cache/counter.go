package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
)

// CountSource is the remote endpoint that knows the real counts.
type CountSource interface {
	Count(ctx context.Context, user *identity.User, kind model.Kind, ownerID string) (int, error)
	CountMany(ctx context.Context, user *identity.User, ownerIDs []string) (model.BatchCounts, error)
}

// IdentityResolver yields the actor that count queries are issued for.
type IdentityResolver interface {
	Identity(ctx context.Context) (*identity.User, bool)
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithLogger sets the logger used for cache diagnostics and failed reads.
func WithLogger(logger *slog.Logger) CounterOption {
	return func(c *Counter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithKeySerializer replaces the default in-flight key builder.
func WithKeySerializer(keys KeySerializer) CounterOption {
	return func(c *Counter) {
		if keys != nil {
			c.keys = keys
		}
	}
}

// WithSnapshot publishes every written count to snapshot.
func WithSnapshot(snapshot *Snapshot) CounterOption {
	return func(c *Counter) {
		c.snapshot = snapshot
	}
}

// Counter reads derived counts through the TTL cache. Concurrent misses for
// the same key, or batches over the same id set, share one remote call.
type Counter struct {
	counts   *CountCache
	source   CountSource
	identity IdentityResolver
	keys     KeySerializer
	snapshot *Snapshot
	logger   *slog.Logger
	group    singleflight.Group
	inflight *xsync.MapOf[string, int]

	// gens counts Refresh calls per count key. A fetch only stores its
	// result if no Refresh happened since it started.
	storeMu sync.Mutex
	gens    map[string]uint64
}

// NewCounter wires a counter over counts, source and resolver.
func NewCounter(counts *CountCache, source CountSource, resolver IdentityResolver, opts ...CounterOption) *Counter {
	c := &Counter{
		counts:   counts,
		source:   source,
		identity: resolver,
		keys:     NewDefaultKeySerializer(),
		snapshot: NewSnapshot(),
		logger:   slog.Default(),
		inflight: xsync.NewMapOf[string, int](),
		gens:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the published view of written counts.
func (c *Counter) Snapshot() *Snapshot {
	return c.snapshot
}

// Cache returns the underlying count cache.
func (c *Counter) Cache() *CountCache {
	return c.counts
}

// FetchCount returns the kind count for id. It reports false when the count
// is unknown: nobody is signed in or the source failed. Nothing is cached in
// that case so a later call retries.
//
// Temporary ids have no server side children yet and resolve to zero without
// touching the network, the cache or the in-flight registry.
func (c *Counter) FetchCount(ctx context.Context, kind model.Kind, id ids.ID) (int, bool) {
	if id.IsTemporary() {
		return 0, true
	}

	owner := id.String()
	if entry, ok := c.counts.GetFresh(kind, owner); ok {
		c.logger.Debug("count cache hit", "kind", kind, "id", owner)
		return entry.Count, true
	}

	key := c.keys.CountKey(kind, owner)
	v, err, shared := c.group.Do(key, func() (any, error) {
		c.enter(key)
		defer c.leave(key)
		gen := c.generation(key)

		callCtx := context.WithoutCancel(ctx)
		user, ok := c.identity.Identity(callCtx)
		if !ok {
			return nil, identity.ErrUnauthenticated
		}

		count, err := c.source.Count(callCtx, user, kind, owner)
		if err != nil {
			c.logger.Warn("count fetch failed", "kind", kind, "id", owner, "error", err)
			return nil, err
		}

		c.storeIf(kind, owner, gen, count)
		return count, nil
	})
	if err != nil {
		return 0, false
	}
	if shared {
		c.logger.Debug("joined in-flight count fetch", "key", key)
	}

	return v.(int), true
}

// Refresh drops any cached value for id and fetches it again.
func (c *Counter) Refresh(ctx context.Context, kind model.Kind, id ids.ID) (int, bool) {
	if id.IsTemporary() {
		return 0, true
	}
	owner := id.String()
	key := c.keys.CountKey(kind, owner)

	c.storeMu.Lock()
	c.gens[key]++
	c.counts.Invalidate(kind, owner)
	c.storeMu.Unlock()

	// A flight started before the write may carry the old count.
	c.group.Forget(key)
	return c.FetchCount(ctx, kind, id)
}

// Adjust applies an optimistic delta to a fresh cached count and publishes it.
func (c *Counter) Adjust(kind model.Kind, id ids.ID, delta int) {
	if id.IsTemporary() {
		return
	}
	if entry, ok := c.counts.Adjust(kind, id.String(), delta); ok && c.snapshot != nil {
		c.snapshot.Publish(kind, id.String(), entry.Count)
	}
}

// FetchCountsForMany loads every kind count for ids in one remote call.
// Callers asking for the same id set share the call; overlapping sets are not
// merged. On success every requested id is cached for every kind, absent ids
// as zero. On failure nothing is cached and the result is (nil, false).
func (c *Counter) FetchCountsForMany(ctx context.Context, list []ids.ID) (model.BatchCounts, bool) {
	result := make(model.BatchCounts, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		result[kind] = make(map[string]int, len(list))
	}

	var owners []string
	for _, id := range list {
		if id.IsTemporary() {
			for _, kind := range model.Kinds() {
				result[kind][id.String()] = 0
			}
			continue
		}
		owners = append(owners, id.String())
	}

	owners = NormalizeIDs(owners)
	if len(owners) == 0 {
		return result, true
	}

	key := c.keys.BatchKey(owners)
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.enter(key)
		defer c.leave(key)

		gens := make(map[model.Kind][]uint64, len(model.Kinds()))
		for _, kind := range model.Kinds() {
			for _, owner := range owners {
				gens[kind] = append(gens[kind], c.generation(c.keys.CountKey(kind, owner)))
			}
		}

		callCtx := context.WithoutCancel(ctx)
		user, ok := c.identity.Identity(callCtx)
		if !ok {
			return nil, identity.ErrUnauthenticated
		}

		counts, err := c.source.CountMany(callCtx, user, owners)
		if err != nil {
			c.logger.Warn("batch count fetch failed", "ids", len(owners), "error", err)
			return nil, err
		}

		normalized := make(model.BatchCounts, len(model.Kinds()))
		for _, kind := range model.Kinds() {
			normalized[kind] = make(map[string]int, len(owners))
			for i, owner := range owners {
				count := counts.Get(kind, owner)
				normalized[kind][owner] = count
				c.storeIf(kind, owner, gens[kind][i], count)
			}
		}
		return normalized, nil
	})
	if err != nil {
		return nil, false
	}

	for kind, byID := range v.(model.BatchCounts) {
		for id, count := range byID {
			result[kind][id] = count
		}
	}
	return result, true
}

// Prefetch warms the cache for ids, batch first, falling back to per-id
// fetches when the batch fails. Ids whose count stays unknown are omitted.
func (c *Counter) Prefetch(ctx context.Context, list []ids.ID) model.BatchCounts {
	if counts, ok := c.FetchCountsForMany(ctx, list); ok {
		return counts
	}

	result := make(model.BatchCounts, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		result[kind] = make(map[string]int, len(list))
		for _, id := range list {
			if count, ok := c.FetchCount(ctx, kind, id); ok {
				result[kind][id.String()] = count
			}
		}
	}
	return result
}

// InFlight lists the registry keys of calls that have not settled yet.
func (c *Counter) InFlight() []string {
	var keys []string
	c.inflight.Range(func(key string, _ int) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func (c *Counter) enter(key string) {
	c.inflight.Compute(key, func(n int, _ bool) (int, bool) {
		return n + 1, false
	})
}

func (c *Counter) leave(key string) {
	c.inflight.Compute(key, func(n int, _ bool) (int, bool) {
		return n - 1, n <= 1
	})
}

func (c *Counter) generation(key string) uint64 {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	return c.gens[key]
}

// storeIf caches count unless a Refresh superseded the fetch that produced it.
func (c *Counter) storeIf(kind model.Kind, id string, gen uint64, count int) {
	key := c.keys.CountKey(kind, id)

	c.storeMu.Lock()
	if c.gens[key] != gen {
		c.storeMu.Unlock()
		c.logger.Debug("dropping superseded count", "kind", kind, "id", id)
		return
	}
	c.counts.Set(kind, id, count)
	c.storeMu.Unlock()

	if c.snapshot != nil {
		c.snapshot.Publish(kind, id, count)
	}
}
