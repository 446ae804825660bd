// Package identity resolves and memoizes the authenticated user that writes and
// count queries are attributed to.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnauthenticated reports that an operation needed a user and none was available.
var ErrUnauthenticated = errors.New("identity: not authenticated")

// User is the authenticated actor. Token is the bearer credential remote
// adapters attach to requests.
type User struct {
	ID    string
	Token string
}

// Provider looks up the current user. A nil user with a nil error means the
// caller is not authenticated.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (*User, error)

// CurrentUser implements Provider.
func (f ProviderFunc) CurrentUser(ctx context.Context) (*User, error) {
	return f(ctx)
}

// Static returns a provider that always yields user. A nil user models a
// signed-out session.
func Static(user *User) Provider {
	return ProviderFunc(func(context.Context) (*User, error) {
		return user, nil
	})
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used to report failed resolutions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRetryAfter lets a failed resolution be retried once d has elapsed.
// Zero keeps the failure until Reset.
func WithRetryAfter(d time.Duration) Option {
	return func(r *Resolver) {
		r.retryAfter = d
	}
}

// WithNow overrides the time source used for the retry cooldown.
func WithNow(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver memoizes the current identity with at most one outstanding
// provider call.
type Resolver struct {
	provider   Provider
	logger     *slog.Logger
	retryAfter time.Duration
	now        func() time.Time
	group      singleflight.Group

	mu       sync.Mutex
	user     *User
	failedAt time.Time
	failed   bool
}

// NewResolver creates a resolver over provider.
func NewResolver(provider Provider, opts ...Option) *Resolver {
	r := &Resolver{
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identity returns the current user. It reports false when nobody is signed
// in or the provider failed; callers abort the dependent operation.
func (r *Resolver) Identity(ctx context.Context) (*User, bool) {
	r.mu.Lock()
	if r.user != nil {
		user := r.user
		r.mu.Unlock()
		return user, true
	}
	if r.failed && (r.retryAfter <= 0 || r.now().Sub(r.failedAt) < r.retryAfter) {
		r.mu.Unlock()
		return nil, false
	}
	r.mu.Unlock()

	// The lookup is shared, so one caller's cancellation must not decide it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := r.group.Do("identity", func() (any, error) {
		user, err := r.provider.CurrentUser(shared)

		r.mu.Lock()
		defer r.mu.Unlock()

		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			// Transient, not remembered.
			r.logger.Warn("identity resolution interrupted", "error", err)
			return (*User)(nil), nil
		case err != nil:
			r.logger.Warn("identity resolution failed", "error", err)
		case user == nil || user.ID == "":
			r.logger.Debug("no authenticated user")
		default:
			r.user = user
			r.failed = false
			return user, nil
		}

		r.failed = true
		r.failedAt = r.now()
		return (*User)(nil), nil
	})

	user, _ := v.(*User)
	return user, user != nil
}

// Reset forgets the memoized identity and any remembered failure, as a fresh
// session would.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = nil
	r.failed = false
	r.failedAt = time.Time{}
}
