// Package reconcile tells dependents when a temporary entity id has been
// replaced by the id the server assigned.
//
// Listeners subscribe to a temporary id before the owning create settles.
// Resolve delivers the server id to each of them once, in subscription order,
// and then forgets the binding: a listener that subscribes afterwards is never
// called. Use Lookup, or follow the entity with a Ref, to cover that window.
package reconcile

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-goal-cache/ids"
)

type listener struct {
	seq uint64
	fn  func(ids.ID)
}

// binding is replaced, never mutated, so Resolve can iterate it unlocked.
type binding struct {
	listeners []listener
}

// DefaultResolvedLimit is how many resolutions a Bus remembers for Lookup.
const DefaultResolvedLimit = 4096

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithResolvedLimit caps how many resolutions are kept for Lookup. The
// oldest is forgotten first. Values below one keep the default.
func WithResolvedLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.limit = n
		}
	}
}

// Bus maps temporary ids to their pending listeners.
type Bus struct {
	bindings *xsync.MapOf[string, *binding]
	resolved *xsync.MapOf[string, ids.ID]
	seq      atomic.Uint64
	logger   *slog.Logger

	// order holds resolved keys oldest first.
	orderMu sync.Mutex
	order   []string
	limit   int
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		bindings: xsync.NewMapOf[string, *binding](),
		resolved: xsync.NewMapOf[string, ids.ID](),
		logger:   slog.Default(),
		limit:    DefaultResolvedLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for tempID and returns a function that removes it.
// Unsubscribing is idempotent and safe after Resolve.
func (b *Bus) Subscribe(tempID ids.ID, fn func(realID ids.ID)) (unsubscribe func()) {
	key := tempID.String()
	l := listener{seq: b.seq.Add(1), fn: fn}

	b.bindings.Compute(key, func(old *binding, loaded bool) (*binding, bool) {
		next := &binding{}
		if loaded {
			next.listeners = slices.Clone(old.listeners)
		}
		next.listeners = append(next.listeners, l)
		return next, false
	})

	return func() {
		b.bindings.Compute(key, func(old *binding, loaded bool) (*binding, bool) {
			if !loaded {
				return nil, true
			}
			next := &binding{listeners: slices.DeleteFunc(slices.Clone(old.listeners), func(x listener) bool {
				return x.seq == l.seq
			})}
			return next, len(next.listeners) == 0
		})
	}
}

// Resolve hands realID to every listener of tempID synchronously, in
// subscription order, and clears the binding. It returns how many listeners
// were called. Resolving an id a second time is a no-op while the first
// resolution is remembered.
func (b *Bus) Resolve(tempID, realID ids.ID) int {
	key := tempID.String()
	if !b.remember(key, realID) {
		b.logger.Debug("temporary id already resolved", "temp_id", key)
		return 0
	}

	bound, ok := b.bindings.LoadAndDelete(key)
	if !ok {
		return 0
	}

	for _, l := range bound.listeners {
		l.fn(realID)
	}
	b.logger.Debug("temporary id resolved", "temp_id", key, "id", realID.String(), "listeners", len(bound.listeners))
	return len(bound.listeners)
}

// Await returns a channel that yields realID once tempID resolves, and a
// cancel function that releases the subscription.
func (b *Bus) Await(tempID ids.ID) (<-chan ids.ID, func()) {
	ch := make(chan ids.ID, 1)
	if real, ok := b.Lookup(tempID); ok {
		ch <- real
		return ch, func() {}
	}

	unsubscribe := b.Subscribe(tempID, func(real ids.ID) {
		select {
		case ch <- real:
		default:
		}
	})

	// Resolve may have run between Lookup and Subscribe.
	if real, ok := b.Lookup(tempID); ok {
		select {
		case ch <- real:
		default:
		}
	}
	return ch, unsubscribe
}

// Lookup returns the server id tempID resolved to, if it has.
func (b *Bus) Lookup(tempID ids.ID) (ids.ID, bool) {
	return b.resolved.Load(tempID.String())
}

// Forget drops the remembered resolution of tempID. Pending listeners are
// left in place.
func (b *Bus) Forget(tempID ids.ID) {
	key := tempID.String()
	b.orderMu.Lock()
	defer b.orderMu.Unlock()
	if _, ok := b.resolved.LoadAndDelete(key); !ok {
		return
	}
	b.order = slices.DeleteFunc(b.order, func(k string) bool { return k == key })
}

// Resolved returns how many resolutions are remembered.
func (b *Bus) Resolved() int {
	return b.resolved.Size()
}

// remember stores the first resolution of key and evicts the oldest ones
// over the limit. It reports false if key was already resolved.
func (b *Bus) remember(key string, realID ids.ID) bool {
	b.orderMu.Lock()
	defer b.orderMu.Unlock()
	if _, loaded := b.resolved.LoadOrStore(key, realID); loaded {
		return false
	}
	b.order = append(b.order, key)
	for len(b.order) > b.limit {
		oldest := b.order[0]
		b.order = b.order[1:]
		b.resolved.Delete(oldest)
		b.logger.Debug("forgetting oldest resolution", "temp_id", oldest)
	}
	return true
}

// Pending returns how many listeners wait on tempID.
func (b *Bus) Pending(tempID ids.ID) int {
	bound, ok := b.bindings.Load(tempID.String())
	if !ok {
		return 0
	}
	return len(bound.listeners)
}
