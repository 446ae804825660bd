package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls atomic.Int32
	user  *User
	err   error
	gate  chan struct{}
}

func (p *countingProvider) CurrentUser(ctx context.Context) (*User, error) {
	p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	return p.user, p.err
}

func TestResolver_Memoizes(t *testing.T) {
	p := &countingProvider{user: &User{ID: "u1", Token: "tok"}}
	r := NewResolver(p)

	for i := 0; i < 3; i++ {
		user, ok := r.Identity(context.Background())
		require.True(t, ok)
		assert.Equal(t, "u1", user.ID)
	}
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestResolver_SingleFlight(t *testing.T) {
	p := &countingProvider{user: &User{ID: "u1"}, gate: make(chan struct{})}
	r := NewResolver(p)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = r.Identity(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load())
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestResolver_FailureIsRemembered(t *testing.T) {
	p := &countingProvider{err: errors.New("auth down")}
	r := NewResolver(p)

	_, ok := r.Identity(context.Background())
	assert.False(t, ok)
	_, ok = r.Identity(context.Background())
	assert.False(t, ok)
	assert.Equal(t, int32(1), p.calls.Load())

	p.err = nil
	p.user = &User{ID: "u1"}
	r.Reset()

	user, ok := r.Identity(context.Background())
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestResolver_Unauthenticated(t *testing.T) {
	r := NewResolver(Static(nil))
	user, ok := r.Identity(context.Background())
	assert.False(t, ok)
	assert.Nil(t, user)
}

func TestResolver_RetryAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := &countingProvider{err: errors.New("transient")}
	r := NewResolver(p, WithRetryAfter(time.Minute), WithNow(func() time.Time { return now }))

	_, ok := r.Identity(context.Background())
	assert.False(t, ok)

	now = now.Add(30 * time.Second)
	_, ok = r.Identity(context.Background())
	assert.False(t, ok)
	assert.Equal(t, int32(1), p.calls.Load())

	now = now.Add(31 * time.Second)
	p.err = nil
	p.user = &User{ID: "u1"}
	_, ok = r.Identity(context.Background())
	assert.True(t, ok)
	assert.Equal(t, int32(2), p.calls.Load())
}

// ctxProvider fails when the context it receives is done, as a network
// backed provider would.
type ctxProvider struct {
	calls atomic.Int32
	user  *User
	err   error
}

func (p *ctxProvider) CurrentUser(ctx context.Context) (*User, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.user, p.err
}

func TestResolver_CanceledCallerDoesNotPoisonIdentity(t *testing.T) {
	p := &ctxProvider{user: &User{ID: "u1"}}
	r := NewResolver(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	user, ok := r.Identity(ctx)
	require.True(t, ok, "lookup runs detached from the caller's cancellation")
	assert.Equal(t, "u1", user.ID)

	user, ok = r.Identity(context.Background())
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestResolver_ContextErrorsAreNotRemembered(t *testing.T) {
	p := &ctxProvider{err: context.DeadlineExceeded}
	r := NewResolver(p)

	_, ok := r.Identity(context.Background())
	assert.False(t, ok)

	p.err = nil
	p.user = &User{ID: "u1"}

	user, ok := r.Identity(context.Background())
	require.True(t, ok, "a timed out lookup is retried on the next call")
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, int32(2), p.calls.Load())
}
