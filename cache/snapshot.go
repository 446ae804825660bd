package cache

import (
	"maps"
	"slices"
	"sync"

	"github.com/goliatone/go-goal-cache/model"
)

// Change describes a published count that differs from the previous value.
type Change struct {
	Kind    model.Kind
	ID      string
	Count   int
	Version uint64
}

// Snapshot is the read-only mirror of the count cache that views observe.
// It only changes, and only notifies, when a published value differs.
type Snapshot struct {
	// notifyMu keeps deliveries in version order.
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	counts    map[model.Kind]map[string]int
	version   uint64
	nextID    int
	listeners []snapshotListener
}

type snapshotListener struct {
	id int
	fn func(Change)
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		counts: make(map[model.Kind]map[string]int),
	}
}

// Publish records count for id and reports whether the visible value changed.
func (s *Snapshot) Publish(kind model.Kind, id string, count int) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	byID, ok := s.counts[kind]
	if !ok {
		byID = make(map[string]int)
		s.counts[kind] = byID
	}
	if prev, seen := byID[id]; seen && prev == count {
		s.mu.Unlock()
		return false
	}

	byID[id] = count
	s.version++
	change := Change{Kind: kind, ID: id, Count: count, Version: s.version}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(change)
	}
	return true
}

// Get returns the last published count for id.
func (s *Snapshot) Get(kind model.Kind, id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count, ok := s.counts[kind][id]
	return count, ok
}

// Counts returns a copy of every published count for kind.
func (s *Snapshot) Counts(kind model.Kind) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.counts[kind])
}

// Version increases on every visible change.
func (s *Snapshot) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// OnChange registers fn for every visible change and returns its remover.
// Listeners run in registration order, one change at a time, and must not
// publish synchronously.
func (s *Snapshot) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, snapshotListener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l snapshotListener) bool {
			return l.id == id
		})
		s.mu.Unlock()
	}
}
