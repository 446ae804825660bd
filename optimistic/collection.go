package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
)

var (
	// ErrOwnerPending rejects a child write whose owner has no server id yet.
	ErrOwnerPending = errors.New("optimistic: owner is not persisted yet")
	// ErrNotPersisted rejects updates and deletes of records that only exist locally.
	ErrNotPersisted = errors.New("optimistic: record is not persisted yet")
	// ErrUnauthenticated is returned when a mutation settles without a user.
	ErrUnauthenticated = identity.ErrUnauthenticated
)

// Source is the remote record endpoint for T.
type Source[T any] interface {
	List(ctx context.Context, user *identity.User, ownerID string) ([]T, error)
	Create(ctx context.Context, user *identity.User, record T) (T, error)
	Update(ctx context.Context, user *identity.User, record T) (T, error)
	Delete(ctx context.Context, user *identity.User, id string) error
}

// IdentityResolver yields the actor mutations are attributed to.
type IdentityResolver interface {
	Identity(ctx context.Context) (*identity.User, bool)
}

// Counts receives count corrections for the owner after writes.
type Counts interface {
	Adjust(kind model.Kind, id ids.ID, delta int)
	Refresh(ctx context.Context, kind model.Kind, id ids.ID) (int, bool)
}

// Reconciler announces temporary ids that gained a server id.
type Reconciler interface {
	Resolve(tempID, realID ids.ID) int
	Lookup(tempID ids.ID) (ids.ID, bool)
}

// Policy decides how a reconciled create is folded back into local state.
type Policy int

const (
	// RefetchOwner reloads the owner's whole list and recounts it. Used for
	// children, whose server form may differ from the placeholder.
	RefetchOwner Policy = iota
	// ReplaceInPlace swaps the placeholder for the server record and resolves
	// its temporary id on the Reconciler. Used for owners such as goals.
	ReplaceInPlace
)

// Option configures a Collection.
type Option func(*options)

type options struct {
	policy   Policy
	kind     model.Kind
	counts   Counts
	bus      Reconciler
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// WithPolicy selects how creates reconcile. Default RefetchOwner.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithCounts adjusts and refreshes the owner's kind count after creates and deletes.
func WithCounts(counts Counts, kind model.Kind) Option {
	return func(o *options) {
		o.counts = counts
		o.kind = kind
	}
}

// WithReconciler sets the bus temporary ids are resolved on.
func WithReconciler(bus Reconciler) Option {
	return func(o *options) { o.bus = bus }
}

// WithNotifier sets where rollbacks are reported. Default LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNow overrides the clock used to stamp placeholders.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Collection holds the in-memory lists of T per owner and applies writes to
// them before the remote confirms.
type Collection[T any] struct {
	resource string
	source   Source[T]
	handlers Handlers[T]
	identity IdentityResolver
	opts     options

	lists    *xsync.MapOf[string, ownerList[T]]
	fetchSeq atomic.Uint64

	// notifyMu orders list commits with their delivery to listeners.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	nextID    int
	listeners []listEntry[T]

	wg sync.WaitGroup
}

// NewCollection creates a collection named resource over source.
func NewCollection[T any](resource string, source Source[T], handlers Handlers[T], resolver IdentityResolver, opts ...Option) *Collection[T] {
	o := options{
		policy: RefetchOwner,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = LogNotifier{Logger: o.logger}
	}

	return &Collection[T]{
		resource: resource,
		source:   source,
		handlers: handlers,
		identity: resolver,
		opts:     o,
		lists:    xsync.NewMapOf[string, ownerList[T]](),
	}
}

// Resource returns the collection name.
func (c *Collection[T]) Resource() string {
	return c.resource
}

// Items returns a copy of the owner's current list, placeholders included.
func (c *Collection[T]) Items(owner ids.ID) []T {
	list, _ := c.lists.Load(owner.String())
	return slices.Clone(list.items)
}

// OnChange registers fn for every list change and returns its remover.
// Listeners run in registration order and see changes in commit order. They
// may read the collection but must not write to it synchronously.
func (c *Collection[T]) OnChange(fn func(owner ids.ID, items []T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listEntry[T]{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l listEntry[T]) bool {
			return l.id == id
		})
		c.mu.Unlock()
	}
}

// Wait blocks until every submitted mutation has settled.
func (c *Collection[T]) Wait() {
	c.wg.Wait()
}

// Load replaces the owner's list with the remote one. Pending placeholders
// stay at the head. A temporary owner has nothing remote and yields an empty
// list without a call.
func (c *Collection[T]) Load(ctx context.Context, owner ids.ID) ([]T, error) {
	if owner.IsTemporary() {
		return c.Items(owner), nil
	}

	user, ok := c.identity.Identity(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	ticket := c.fetchSeq.Add(1)
	records, err := c.source.List(ctx, user, owner.String())
	if err != nil {
		c.opts.logger.Warn("list failed", "resource", c.resource, "owner", owner.String(), "error", err)
		return nil, fmt.Errorf("list %s: %w", c.resource, err)
	}

	return c.applyFetch(owner, ticket, records, ids.ID{}), nil
}

// Create validates rec, shows it under a temporary id at the head of the
// owner's list and persists it in the background. Validation errors are
// returned without touching state.
func (c *Collection[T]) Create(ctx context.Context, owner ids.ID, rec T) (*Mutation[T], error) {
	c.handlers.SetOwner(&rec, owner)
	if err := c.handlers.Validate(rec); err != nil {
		return nil, err
	}

	temp := ids.NewTemporary()
	c.handlers.SetID(&rec, temp)
	c.handlers.Stamp(&rec, c.opts.now(), true)

	c.update(owner, func(items []T) []T {
		return append([]T{rec}, items...)
	})

	m := newMutation[T](temp)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runCreate(context.WithoutCancel(ctx), owner, rec, m)
	}()
	return m, nil
}

func (c *Collection[T]) runCreate(ctx context.Context, owner ids.ID, rec T, m *Mutation[T]) {
	temp := m.ID()

	if owner.IsTemporary() {
		real, ok := c.lookup(owner)
		if !ok {
			c.rollbackCreate(ctx, owner, m, ErrOwnerPending)
			return
		}
		c.handlers.SetOwner(&rec, real)
	}

	user, ok := c.identity.Identity(ctx)
	if !ok {
		c.rollbackCreate(ctx, owner, m, ErrUnauthenticated)
		return
	}

	// The server assigns the id.
	c.handlers.SetID(&rec, ids.ID{})
	saved, err := c.source.Create(ctx, user, rec)
	if err != nil {
		c.rollbackCreate(ctx, owner, m, err)
		return
	}

	switch c.opts.policy {
	case ReplaceInPlace:
		c.replace(owner, temp, saved)
		if c.opts.bus != nil {
			c.opts.bus.Resolve(temp, c.handlers.GetID(saved))
		}
	default:
		c.refetchOwner(ctx, user, owner, temp, saved)
		c.recount(ctx, owner, +1)
	}

	c.opts.logger.Debug("create reconciled",
		"resource", c.resource, "temp_id", temp.String(), "id", c.handlers.GetID(saved).String())
	m.settle(Reconciled, saved, nil)
}

func (c *Collection[T]) refetchOwner(ctx context.Context, user *identity.User, owner, temp ids.ID, saved T) {
	target := c.handlers.GetOwner(saved)
	if target.IsZero() {
		target = owner
	}

	ticket := c.fetchSeq.Add(1)
	records, err := c.source.List(ctx, user, target.String())
	if err != nil {
		c.opts.logger.Warn("refetch after create failed, keeping server record",
			"resource", c.resource, "owner", target.String(), "error", err)
		c.replace(owner, temp, saved)
		return
	}

	c.applyFetch(owner, ticket, records, temp)
}

func (c *Collection[T]) rollbackCreate(ctx context.Context, owner ids.ID, m *Mutation[T], cause error) {
	temp := m.ID()
	c.update(owner, func(items []T) []T {
		return slices.DeleteFunc(items, func(it T) bool {
			return c.handlers.GetID(it) == temp
		})
	})
	c.fail(ctx, "create", owner, temp, cause)

	var zero T
	m.settle(RolledBack, zero, cause)
}

// Update shows rec in place of the record with the same id and persists it
// in the background. On failure the previous record is restored.
func (c *Collection[T]) Update(ctx context.Context, owner ids.ID, rec T) (*Mutation[T], error) {
	id := c.handlers.GetID(rec)
	if id.IsZero() || id.IsTemporary() {
		return nil, ErrNotPersisted
	}
	c.handlers.SetOwner(&rec, owner)
	if err := c.handlers.Validate(rec); err != nil {
		return nil, err
	}
	c.handlers.Stamp(&rec, c.opts.now(), false)

	var (
		previous T
		found    bool
	)
	c.update(owner, func(items []T) []T {
		i := c.indexOf(items, id)
		if i < 0 {
			return items
		}
		previous, found = items[i], true
		items[i] = rec
		return items
	})

	m := newMutation[T](id)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx := context.WithoutCancel(ctx)

		user, ok := c.identity.Identity(ctx)
		if !ok {
			c.rollbackUpdate(ctx, owner, m, previous, found, ErrUnauthenticated)
			return
		}

		saved, err := c.source.Update(ctx, user, rec)
		if err != nil {
			c.rollbackUpdate(ctx, owner, m, previous, found, err)
			return
		}

		c.replace(owner, id, saved)
		m.settle(Reconciled, saved, nil)
	}()
	return m, nil
}

func (c *Collection[T]) rollbackUpdate(ctx context.Context, owner ids.ID, m *Mutation[T], previous T, found bool, cause error) {
	if found {
		c.replace(owner, m.ID(), previous)
	}
	c.fail(ctx, "update", owner, m.ID(), cause)

	var zero T
	m.settle(RolledBack, zero, cause)
}

// Delete hides the record with id and deletes it in the background. On
// failure the record is reinserted where it was.
func (c *Collection[T]) Delete(ctx context.Context, owner, id ids.ID) (*Mutation[T], error) {
	if id.IsZero() || id.IsTemporary() {
		return nil, ErrNotPersisted
	}

	var (
		removed T
		index   = -1
	)
	c.update(owner, func(items []T) []T {
		index = c.indexOf(items, id)
		if index < 0 {
			return items
		}
		removed = items[index]
		return slices.Delete(items, index, index+1)
	})

	m := newMutation[T](id)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx := context.WithoutCancel(ctx)

		rollback := func(cause error) {
			if index >= 0 {
				c.update(owner, func(items []T) []T {
					return slices.Insert(items, min(index, len(items)), removed)
				})
			}
			c.fail(ctx, "delete", owner, id, cause)

			var zero T
			m.settle(RolledBack, zero, cause)
		}

		user, ok := c.identity.Identity(ctx)
		if !ok {
			rollback(ErrUnauthenticated)
			return
		}

		if err := c.source.Delete(ctx, user, id.String()); err != nil {
			rollback(err)
			return
		}

		c.recount(ctx, owner, -1)
		m.settle(Reconciled, removed, nil)
	}()
	return m, nil
}

func (c *Collection[T]) recount(ctx context.Context, owner ids.ID, delta int) {
	if c.opts.counts == nil || c.opts.kind == "" {
		return
	}
	if owner.IsTemporary() {
		real, ok := c.lookup(owner)
		if !ok {
			return
		}
		owner = real
	}
	c.opts.counts.Adjust(c.opts.kind, owner, delta)
	c.opts.counts.Refresh(ctx, c.opts.kind, owner)
}

func (c *Collection[T]) lookup(temp ids.ID) (ids.ID, bool) {
	if c.opts.bus == nil {
		return ids.ID{}, false
	}
	return c.opts.bus.Lookup(temp)
}

func (c *Collection[T]) fail(ctx context.Context, op string, owner, id ids.ID, cause error) {
	c.opts.logger.Warn("mutation rolled back",
		"resource", c.resource, "op", op, "id", id.String(), "error", cause)
	c.opts.notifier.Notify(ctx, Failure{
		Resource: c.resource,
		Op:       op,
		ID:       id,
		Owner:    owner,
		Err:      cause,
	})
}

func (c *Collection[T]) replace(owner, id ids.ID, rec T) {
	c.update(owner, func(items []T) []T {
		if i := c.indexOf(items, id); i >= 0 {
			items[i] = rec
		}
		return items
	})
}

// applyFetch folds a remote list into the owner's list and drops the settled
// placeholder. A fetch issued before the last applied one only drops the
// placeholder, so a slow response never overwrites a newer list.
func (c *Collection[T]) applyFetch(owner ids.ID, ticket uint64, records []T, settled ids.ID) []T {
	return c.modify(owner, func(list ownerList[T]) ownerList[T] {
		items := slices.DeleteFunc(slices.Clone(list.items), func(it T) bool {
			return !settled.IsZero() && c.handlers.GetID(it) == settled
		})
		if ticket < list.fetched {
			list.items = items
			return list
		}
		list.items = c.mergePending(items, records)
		list.fetched = ticket
		return list
	})
}

// mergePending keeps unsettled placeholders from current ahead of records.
func (c *Collection[T]) mergePending(current, records []T) []T {
	var out []T
	for _, it := range current {
		if c.handlers.GetID(it).IsTemporary() {
			out = append(out, it)
		}
	}
	return append(out, records...)
}

func (c *Collection[T]) indexOf(items []T, id ids.ID) int {
	return slices.IndexFunc(items, func(it T) bool {
		return c.handlers.GetID(it) == id
	})
}

// update applies fn to a private copy of the owner's list.
func (c *Collection[T]) update(owner ids.ID, fn func(items []T) []T) []T {
	return c.modify(owner, func(list ownerList[T]) ownerList[T] {
		list.items = fn(slices.Clone(list.items))
		return list
	})
}

// modify stores the result of fn for owner and notifies listeners with it.
func (c *Collection[T]) modify(owner ids.ID, fn func(list ownerList[T]) ownerList[T]) []T {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	next, _ := c.lists.Compute(owner.String(), func(old ownerList[T], _ bool) (ownerList[T], bool) {
		return fn(old), false
	})

	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.fn(owner, slices.Clone(next.items))
	}
	return slices.Clone(next.items)
}

type listEntry[T any] struct {
	id int
	fn func(owner ids.ID, items []T)
}

// ownerList is one owner's records. fetched is the ticket of the last remote
// list folded in.
type ownerList[T any] struct {
	items   []T
	fetched uint64
}
