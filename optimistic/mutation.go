package optimistic

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-goal-cache/ids"
)

// State is the lifecycle position of a mutation.
type State int32

const (
	// Pending: the optimistic change is visible and the remote call has not settled.
	Pending State = iota
	// Reconciled: the remote accepted the change and local state reflects the server.
	Reconciled
	// RolledBack: the remote rejected the change, or it never reached it, and the
	// optimistic change was undone.
	RolledBack
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Reconciled:
		return "reconciled"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Mutation tracks one optimistic write. Each submission gets its own
// mutation; distinct submissions are never merged.
type Mutation[T any] struct {
	id     ids.ID
	state  atomic.Int32
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

func newMutation[T any](id ids.ID) *Mutation[T] {
	return &Mutation[T]{id: id, done: make(chan struct{})}
}

// ID returns the id the record was visible under while pending. For creates
// this is the temporary id.
func (m *Mutation[T]) ID() ids.ID {
	return m.id
}

// State returns the current state.
func (m *Mutation[T]) State() State {
	return State(m.state.Load())
}

// Done is closed when the mutation leaves Pending.
func (m *Mutation[T]) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mutation settles or ctx is done. It returns the server
// record on success and the rollback cause otherwise.
func (m *Mutation[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-m.done:
		return m.result, m.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (m *Mutation[T]) settle(state State, result T, err error) {
	m.once.Do(func() {
		m.result = result
		m.err = err
		m.state.Store(int32(state))
		close(m.done)
	})
}
