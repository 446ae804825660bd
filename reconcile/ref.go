package reconcile

import (
	"sync"

	"github.com/goliatone/go-goal-cache/ids"
)

// Ref follows an entity from its temporary id to its server id. Dependent
// fetches read ID() at call time and so pick up the server id as soon as the
// owning create reconciles.
type Ref struct {
	mu          sync.RWMutex
	id          ids.ID
	resolved    chan struct{}
	once        sync.Once
	unsubscribe func()
}

// NewRef creates a ref for id. Persisted ids are resolved from the start.
func NewRef(bus *Bus, id ids.ID) *Ref {
	r := &Ref{id: id, resolved: make(chan struct{}), unsubscribe: func() {}}
	if !id.IsTemporary() {
		r.settle(id)
		return r
	}

	unsubscribe := bus.Subscribe(id, r.settle)
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	if real, ok := bus.Lookup(id); ok {
		r.settle(real)
	}
	return r
}

func (r *Ref) settle(real ids.ID) {
	r.once.Do(func() {
		r.mu.Lock()
		r.id = real
		r.mu.Unlock()
		close(r.resolved)
	})
}

// ID returns the current id: temporary until resolution, then the server id.
func (r *Ref) ID() ids.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// Resolved is closed once the ref holds a persisted id.
func (r *Ref) Resolved() <-chan struct{} {
	return r.resolved
}

// Close drops the subscription. The ref keeps its last id.
func (r *Ref) Close() {
	r.mu.RLock()
	unsubscribe := r.unsubscribe
	r.mu.RUnlock()
	unsubscribe()
}
