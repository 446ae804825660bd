package reconcile

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-goal-cache/ids"
)

func TestBus_ResolveCallsListenersInOrder(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")

	var order []string
	bus.Subscribe(temp, func(real ids.ID) { order = append(order, "first:"+real.String()) })
	bus.Subscribe(temp, func(real ids.ID) { order = append(order, "second:"+real.String()) })
	require.Equal(t, 2, bus.Pending(temp))

	n := bus.Resolve(temp, ids.Persisted("g-42"))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first:g-42", "second:g-42"}, order)
	assert.Equal(t, 0, bus.Pending(temp))
}

func TestBus_SecondResolveIsNoop(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")

	calls := 0
	bus.Subscribe(temp, func(ids.ID) { calls++ })

	bus.Resolve(temp, ids.Persisted("g-42"))
	assert.Equal(t, 0, bus.Resolve(temp, ids.Persisted("g-43")))
	assert.Equal(t, 1, calls)

	real, ok := bus.Lookup(temp)
	require.True(t, ok)
	assert.Equal(t, "g-42", real.String())
}

func TestBus_LateSubscriberIsNeverCalled(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")

	bus.Resolve(temp, ids.Persisted("g-42"))

	called := false
	bus.Subscribe(temp, func(ids.ID) { called = true })
	bus.Resolve(temp, ids.Persisted("g-42"))

	assert.False(t, called)
}

func TestBus_ResolveWithoutListeners(t *testing.T) {
	bus := NewBus()

	assert.Equal(t, 0, bus.Resolve(ids.Temporary("T1"), ids.Persisted("g-42")))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")

	var got []string
	unsubscribe := bus.Subscribe(temp, func(ids.ID) { got = append(got, "a") })
	bus.Subscribe(temp, func(ids.ID) { got = append(got, "b") })

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, bus.Pending(temp))

	bus.Resolve(temp, ids.Persisted("g-42"))
	assert.Equal(t, []string{"b"}, got)

	assert.NotPanics(t, unsubscribe)
}

func TestBus_BindingsAreIndependent(t *testing.T) {
	bus := NewBus()
	t1, t2 := ids.Temporary("T1"), ids.Temporary("T2")

	var got []string
	bus.Subscribe(t1, func(real ids.ID) { got = append(got, real.String()) })
	bus.Subscribe(t2, func(real ids.ID) { got = append(got, real.String()) })

	bus.Resolve(t2, ids.Persisted("g-2"))

	assert.Equal(t, []string{"g-2"}, got)
	assert.Equal(t, 1, bus.Pending(t1))
}

func TestBus_Await(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")

	ch, cancel := bus.Await(temp)
	defer cancel()

	go bus.Resolve(temp, ids.Persisted("g-42"))

	select {
	case real := <-ch:
		assert.Equal(t, "g-42", real.String())
	case <-time.After(time.Second):
		t.Fatal("expected resolution to be delivered")
	}
}

func TestBus_AwaitAfterResolve(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")
	bus.Resolve(temp, ids.Persisted("g-42"))

	ch, cancel := bus.Await(temp)
	defer cancel()

	select {
	case real := <-ch:
		assert.Equal(t, "g-42", real.String())
	default:
		t.Fatal("expected an already resolved id to be ready")
	}
}

func TestBus_AwaitCancel(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")

	_, cancel := bus.Await(temp)
	require.Equal(t, 1, bus.Pending(temp))

	cancel()
	assert.Equal(t, 0, bus.Pending(temp))
}

func TestBus_ResolvedIsBounded(t *testing.T) {
	bus := NewBus(WithResolvedLimit(2))

	bus.Resolve(ids.Temporary("T1"), ids.Persisted("g-1"))
	bus.Resolve(ids.Temporary("T2"), ids.Persisted("g-2"))
	bus.Resolve(ids.Temporary("T3"), ids.Persisted("g-3"))

	assert.Equal(t, 2, bus.Resolved())

	_, ok := bus.Lookup(ids.Temporary("T1"))
	assert.False(t, ok, "oldest resolution should be forgotten")

	real, ok := bus.Lookup(ids.Temporary("T3"))
	require.True(t, ok)
	assert.Equal(t, "g-3", real.String())
}

func TestBus_ManyResolutionsStayWithinDefaultLimit(t *testing.T) {
	bus := NewBus()
	for i := range DefaultResolvedLimit + 10 {
		bus.Resolve(ids.Temporary(strconv.Itoa(i)), ids.Persisted("g-"+strconv.Itoa(i)))
	}
	assert.Equal(t, DefaultResolvedLimit, bus.Resolved())
}

func TestBus_Forget(t *testing.T) {
	bus := NewBus()
	temp := ids.Temporary("T1")

	bus.Resolve(temp, ids.Persisted("g-1"))
	bus.Forget(temp)

	_, ok := bus.Lookup(temp)
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Resolved())

	// Forgetting an unknown id is a no-op.
	bus.Forget(ids.Temporary("T9"))
}
