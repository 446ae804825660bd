package testsupport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
)

// ErrRemote is the failure fakes return when told to fail.
var ErrRemote = errors.New("testsupport: simulated remote failure")

// Gate blocks fake calls until released. The zero value is open.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Release lets every blocked and future call through.
func (g *Gate) Release() {
	if g == nil || g.ch == nil {
		return
	}
	g.once.Do(func() { close(g.ch) })
}

func (g *Gate) wait(ctx context.Context) error {
	if g == nil || g.ch == nil {
		return nil
	}
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CountSource is an in-memory count endpoint that records every call.
type CountSource struct {
	mu         sync.Mutex
	counts     model.BatchCounts
	err        error
	gate       *Gate
	calls      int
	batchCalls int
	batches    [][]string
	users      []string
	owners     []string
}

// NewCountSource creates an empty source.
func NewCountSource() *CountSource {
	return &CountSource{counts: make(model.BatchCounts)}
}

// SetCount sets the count the source reports for id.
func (s *CountSource) SetCount(kind model.Kind, id string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[kind] == nil {
		s.counts[kind] = make(map[string]int)
	}
	s.counts[kind][id] = count
}

// FailWith makes every following call return err. Nil restores success.
func (s *CountSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Block holds every following call until the returned gate is released.
func (s *CountSource) Block() *Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = NewGate()
	return s.gate
}

// Count implements the single count endpoint.
func (s *CountSource) Count(ctx context.Context, user *identity.User, kind model.Kind, ownerID string) (int, error) {
	s.mu.Lock()
	s.calls++
	s.users = append(s.users, user.ID)
	s.owners = append(s.owners, ownerID)
	gate := s.gate
	s.mu.Unlock()

	if err := gate.wait(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[kind][ownerID], nil
}

// CountMany implements the batch count endpoint. Ids without a count are
// left out of the response.
func (s *CountSource) CountMany(ctx context.Context, user *identity.User, ownerIDs []string) (model.BatchCounts, error) {
	s.mu.Lock()
	s.batchCalls++
	s.batches = append(s.batches, slices.Clone(ownerIDs))
	s.users = append(s.users, user.ID)
	gate := s.gate
	s.mu.Unlock()

	if err := gate.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	out := make(model.BatchCounts)
	for kind, byID := range s.counts {
		for _, id := range ownerIDs {
			if count, ok := byID[id]; ok {
				if out[kind] == nil {
					out[kind] = make(map[string]int)
				}
				out[kind][id] = count
			}
		}
	}
	return out, nil
}

// Calls returns how many single count calls were made.
func (s *CountSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// BatchCalls returns how many batch calls were made.
func (s *CountSource) BatchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchCalls
}

// Batches returns the id lists of every batch call.
func (s *CountSource) Batches() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.batches)
}

// Owners returns the owner id of every single count call, in order.
func (s *CountSource) Owners() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.owners)
}

// Users returns the user id attached to each call, in order.
func (s *CountSource) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users)
}

// RecordSource is an in-memory record endpoint for one record type. It assigns
// server ids on create and records every call by method name.
type RecordSource[T any] struct {
	mu       sync.Mutex
	records  []T
	getID    func(T) ids.ID
	setID    func(*T, ids.ID)
	getOwner func(T) ids.ID
	prefix   string
	seq      int
	err      map[string]error
	gate     map[string]*Gate
	calls    []string
}

// NewRecordSource creates an empty source. prefix is prepended to assigned ids.
func NewRecordSource[T any](prefix string, getID func(T) ids.ID, setID func(*T, ids.ID), getOwner func(T) ids.ID) *RecordSource[T] {
	return &RecordSource[T]{
		getID:    getID,
		setID:    setID,
		getOwner: getOwner,
		prefix:   prefix,
		err:      make(map[string]error),
		gate:     make(map[string]*Gate),
	}
}

// Seed adds records as if they were already persisted.
func (s *RecordSource[T]) Seed(records ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// FailWith makes method ("List", "Create", "Update", "Delete") return err.
func (s *RecordSource[T]) FailWith(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.err, method)
		return
	}
	s.err[method] = err
}

// Block holds calls to method until the returned gate is released.
func (s *RecordSource[T]) Block(method string) *Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := NewGate()
	s.gate[method] = g
	return g
}

// Calls returns the recorded method names in call order.
func (s *RecordSource[T]) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount returns how many times method was called.
func (s *RecordSource[T]) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Records returns the persisted records.
func (s *RecordSource[T]) Records() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

func (s *RecordSource[T]) enter(ctx context.Context, method string) error {
	s.mu.Lock()
	s.calls = append(s.calls, method)
	gate := s.gate[method]
	s.mu.Unlock()

	if err := gate.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err[method]
}

// List returns the owner's records, newest first.
func (s *RecordSource[T]) List(ctx context.Context, user *identity.User, ownerID string) ([]T, error) {
	if err := s.enter(ctx, "List"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []T
	for i := len(s.records) - 1; i >= 0; i-- {
		if ownerID == "" || s.getOwner(s.records[i]).String() == ownerID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// Create persists record under a fresh server id.
func (s *RecordSource[T]) Create(ctx context.Context, user *identity.User, record T) (T, error) {
	if err := s.enter(ctx, "Create"); err != nil {
		var zero T
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.setID(&record, ids.Persisted(fmt.Sprintf("%s-%d", s.prefix, s.seq)))
	s.records = append(s.records, record)
	return record, nil
}

// Update replaces the persisted record with the same id.
func (s *RecordSource[T]) Update(ctx context.Context, user *identity.User, record T) (T, error) {
	if err := s.enter(ctx, "Update"); err != nil {
		var zero T
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.getID(s.records[i]) == s.getID(record) {
			s.records[i] = record
			return record, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("record %s not found", s.getID(record))
}

// Delete removes the persisted record with id.
func (s *RecordSource[T]) Delete(ctx context.Context, user *identity.User, id string) error {
	if err := s.enter(ctx, "Delete"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.getID(s.records[i]).String() == id {
			s.records = slices.Delete(s.records, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("record %s not found", id)
}

// NoteSource returns a RecordSource wired for notes.
func NoteSource() *RecordSource[model.Note] {
	return NewRecordSource("n",
		func(n model.Note) ids.ID { return n.ID },
		func(n *model.Note, id ids.ID) { n.ID = id },
		func(n model.Note) ids.ID { return n.GoalID },
	)
}

// AccomplishmentSource returns a RecordSource wired for accomplishments.
func AccomplishmentSource() *RecordSource[model.Accomplishment] {
	return NewRecordSource("a",
		func(a model.Accomplishment) ids.ID { return a.ID },
		func(a *model.Accomplishment, id ids.ID) { a.ID = id },
		func(a model.Accomplishment) ids.ID { return a.GoalID },
	)
}

// GoalSource returns a RecordSource wired for goals. Goals are listed
// regardless of owner.
func GoalSource() *RecordSource[model.Goal] {
	return NewRecordSource("g",
		func(g model.Goal) ids.ID { return g.ID },
		func(g *model.Goal, id ids.ID) { g.ID = id },
		func(g model.Goal) ids.ID { return ids.Persisted(g.UserID) },
	)
}

// User is the identity fakes are usually called with.
var User = &identity.User{ID: "user-1", Token: "token-1"}
