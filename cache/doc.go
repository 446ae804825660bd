// Package cache keeps derived per-goal counts (notes, accomplishments) fresh
// for a short window and coalesces concurrent reads into one remote call.
//
// # Overview
//
// The package exports three building blocks:
//
//   - CountCache: one sturdyc backed TTL store per count kind
//   - Counter: read-through access to a CountSource with request coalescing
//   - Snapshot: the published view of counts that UI layers observe
//
// # Basic Usage
//
//	counts, err := cache.NewCountCache(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	counter := cache.NewCounter(counts, source, resolver)
//
//	n, ok := counter.FetchCount(ctx, model.KindNotes, goalID)
//	if !ok {
//		// count unknown: signed out or the source failed
//	}
//
// # Freshness
//
// An entry written at t with ttl d is served until t+d (exclusive). Stale
// entries are never returned; the next read refetches and overwrites them.
// Failed reads are never cached, so a later call retries.
//
// Counter.Adjust applies optimistic deltas to fresh entries only and keeps
// their original expiry.
//
// # Coalescing
//
// Concurrent FetchCount calls for the same kind and id share one remote call.
// FetchCountsForMany callers share a call only when they ask for exactly the
// same id set; order and duplicates do not matter. Keys are built by a
// KeySerializer:
//
//	count::<kind>::<id>
//	batch::<n>::<xxhash of sorted ids>
//
// Temporary ids short-circuit to zero without touching the network, the
// cache, or the in-flight registry.
package cache
