package di

import (
	"fmt"
	"log/slog"

	"github.com/goliatone/go-goal-cache/cache"
	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/model"
	"github.com/goliatone/go-goal-cache/optimistic"
	"github.com/goliatone/go-goal-cache/reconcile"
	"github.com/goliatone/go-goal-cache/remote/httpapi"
	"github.com/goliatone/go-goal-cache/remote/sqlstore"
)

// Sources bundles the remote endpoints the container reads from and writes to.
type Sources struct {
	Counts          cache.CountSource
	Goals           optimistic.Source[model.Goal]
	Notes           optimistic.Source[model.Note]
	Accomplishments optimistic.Source[model.Accomplishment]
}

// SQLSources serves every endpoint from a local database.
func SQLSources(store *sqlstore.Store) Sources {
	return Sources{
		Counts:          store,
		Goals:           store.Goals(),
		Notes:           store.Notes(),
		Accomplishments: store.Accomplishments(),
	}
}

// HTTPSources serves every endpoint from the REST API.
func HTTPSources(client *httpapi.Client) Sources {
	return Sources{
		Counts:          client,
		Goals:           client.Goals(),
		Notes:           client.Notes(),
		Accomplishments: client.Accomplishments(),
	}
}

// Option configures a Container.
type Option func(*containerOptions)

type containerOptions struct {
	logger       *slog.Logger
	clock        cache.Clock
	notifier     optimistic.Notifier
	identityOpts []identity.Option
	keys         cache.KeySerializer
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the count cache time source.
func WithClock(clock cache.Clock) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// WithNotifier receives rolled back mutations from every collection.
func WithNotifier(n optimistic.Notifier) Option {
	return func(o *containerOptions) {
		o.notifier = n
	}
}

// WithIdentityOptions configures the identity resolver.
func WithIdentityOptions(opts ...identity.Option) Option {
	return func(o *containerOptions) {
		o.identityOpts = append(o.identityOpts, opts...)
	}
}

// WithKeySerializer replaces the in-flight key builder.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(o *containerOptions) {
		o.keys = keys
	}
}

// Container provides dependency injection for the count cache and the
// optimistic collections. It owns one instance of every shared component so
// that writes, count corrections and id reconciliation all meet in the same
// place.
type Container struct {
	config   cache.Config
	resolver *identity.Resolver
	counts   *cache.CountCache
	counter  *cache.Counter
	bus      *reconcile.Bus

	goals           *optimistic.Collection[model.Goal]
	notes           *optimistic.Collection[model.Note]
	accomplishments *optimistic.Collection[model.Accomplishment]
}

// NewContainer creates a container with the provided cache configuration.
// provider supplies the signed in user and sources the remote endpoints.
//
// Goals reconcile in place and announce their server id on the bus, so notes
// and accomplishments created under a temporary goal can follow it. Child
// collections refetch their goal's list and correct its count after each write.
func NewContainer(config cache.Config, provider identity.Provider, sources Sources, opts ...Option) (*Container, error) {
	o := &containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	var cacheOpts []cache.CountCacheOption
	if o.clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(o.clock))
	}
	counts, err := cache.NewCountCache(config, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("di: count cache: %w", err)
	}

	resolver := identity.NewResolver(provider,
		append([]identity.Option{identity.WithLogger(o.logger)}, o.identityOpts...)...,
	)

	counter := cache.NewCounter(counts, sources.Counts, resolver,
		cache.WithLogger(o.logger),
		cache.WithKeySerializer(o.keys),
	)

	bus := reconcile.NewBus(reconcile.WithLogger(o.logger))

	common := []optimistic.Option{
		optimistic.WithReconciler(bus),
		optimistic.WithLogger(o.logger),
	}
	if o.notifier != nil {
		common = append(common, optimistic.WithNotifier(o.notifier))
	}
	with := func(extra ...optimistic.Option) []optimistic.Option {
		return append(append([]optimistic.Option{}, common...), extra...)
	}

	return &Container{
		config:   config,
		resolver: resolver,
		counts:   counts,
		counter:  counter,
		bus:      bus,
		goals: optimistic.NewCollection("goals", sources.Goals, optimistic.GoalHandlers(), resolver,
			with(optimistic.WithPolicy(optimistic.ReplaceInPlace))...,
		),
		notes: optimistic.NewCollection("notes", sources.Notes, optimistic.NoteHandlers(), resolver,
			with(optimistic.WithCounts(counter, model.KindNotes))...,
		),
		accomplishments: optimistic.NewCollection("accomplishments", sources.Accomplishments, optimistic.AccomplishmentHandlers(), resolver,
			with(optimistic.WithCounts(counter, model.KindAccomplishments))...,
		),
	}, nil
}

// NewContainerWithDefaults creates a container using the default cache
// configuration.
func NewContainerWithDefaults(provider identity.Provider, sources Sources, opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), provider, sources, opts...)
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Identity returns the shared identity resolver.
func (c *Container) Identity() *identity.Resolver {
	return c.resolver
}

// Counts returns the underlying TTL cache.
func (c *Container) Counts() *cache.CountCache {
	return c.counts
}

// Counter returns the coalescing count reader.
func (c *Container) Counter() *cache.Counter {
	return c.counter
}

// Snapshot returns the published count view.
func (c *Container) Snapshot() *cache.Snapshot {
	return c.counter.Snapshot()
}

// Bus returns the temporary id reconciliation bus.
func (c *Container) Bus() *reconcile.Bus {
	return c.bus
}

// Goals returns the goal collection.
func (c *Container) Goals() *optimistic.Collection[model.Goal] {
	return c.goals
}

// Notes returns the note collection.
func (c *Container) Notes() *optimistic.Collection[model.Note] {
	return c.notes
}

// Accomplishments returns the accomplishment collection.
func (c *Container) Accomplishments() *optimistic.Collection[model.Accomplishment] {
	return c.accomplishments
}

// Wait blocks until every background reconciliation has settled.
func (c *Container) Wait() {
	c.goals.Wait()
	c.notes.Wait()
	c.accomplishments.Wait()
}
