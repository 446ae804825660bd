package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/identity/session"
	"github.com/goliatone/go-goal-cache/internal/config"
	"github.com/goliatone/go-goal-cache/pkg/di"
	"github.com/goliatone/go-goal-cache/remote/httpapi"
	"github.com/goliatone/go-goal-cache/remote/sqlstore"
)

var errSQLOnly = errors.New("this command needs remote.mode: sql")

// env holds everything a command run needs. Fields are nil when the command
// did not ask for them.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessions  *session.Store
	store     *sqlstore.Store
	client    *httpapi.Client
	container *di.Container
	closers   []func() error
}

func loadConfig(cmd *cobra.Command, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, cfg.Logger(stderr), nil
}

// openSessions opens only the local session store.
func openSessions(cmd *cobra.Command, stderr io.Writer) (*env, error) {
	cfg, logger, err := loadConfig(cmd, stderr)
	if err != nil {
		return nil, err
	}

	sessions, err := session.Open(cfg.Session.Path)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		closers:  []func() error{sessions.Close},
	}, nil
}

// openStore opens the SQL store without the session or cache layers.
func openStore(cmd *cobra.Command, stderr io.Writer) (*env, error) {
	cfg, logger, err := loadConfig(cmd, stderr)
	if err != nil {
		return nil, err
	}
	if cfg.Remote.Mode != config.ModeSQL {
		return nil, errSQLOnly
	}

	store, err := sqlstore.Open(cfg.Remote.Driver, cfg.Remote.DSN, sqlstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		closers: []func() error{store.Close},
	}, nil
}

// openApp wires the full stack: session identity, remote and container.
func openApp(cmd *cobra.Command, stderr io.Writer) (*env, error) {
	e, err := openSessions(cmd, stderr)
	if err != nil {
		return nil, err
	}

	sources, err := e.openRemote(cmd.Context())
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	cacheCfg, err := e.cfg.CacheSettings()
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	provider := session.NewProvider(e.sessions, []byte(e.cfg.Session.JWTSecret))
	container, err := di.NewContainer(cacheCfg, provider, sources,
		di.WithLogger(e.logger),
		di.WithIdentityOptions(identity.WithRetryAfter(e.cfg.RetryAfter())),
	)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.container = container
	return e, nil
}

func (e *env) openRemote(ctx context.Context) (di.Sources, error) {
	switch e.cfg.Remote.Mode {
	case config.ModeHTTP:
		client, err := httpapi.New(httpapi.Config{
			BaseURL: e.cfg.Remote.BaseURL,
			Timeout: e.cfg.RemoteTimeout(),
		}, httpapi.WithLogger(e.logger))
		if err != nil {
			return di.Sources{}, err
		}
		e.client = client
		e.closers = append(e.closers, client.Close)
		return di.HTTPSources(client), nil

	case config.ModeSQL:
		store, err := sqlstore.Open(e.cfg.Remote.Driver, e.cfg.Remote.DSN, sqlstore.WithLogger(e.logger))
		if err != nil {
			return di.Sources{}, err
		}
		e.store = store
		e.closers = append(e.closers, store.Close)

		if e.cfg.Remote.Driver == sqlstore.DriverSQLite {
			if err := store.Migrate(ctx); err != nil {
				return di.Sources{}, err
			}
		}
		return di.SQLSources(store), nil

	default:
		return di.Sources{}, fmt.Errorf("unknown remote mode %q", e.cfg.Remote.Mode)
	}
}

// user returns the signed in user or identity.ErrUnauthenticated.
func (e *env) user(ctx context.Context) (*identity.User, error) {
	user, ok := e.container.Identity().Identity(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: run goalcache login", identity.ErrUnauthenticated)
	}
	return user, nil
}

// Close waits for background writes and releases every resource.
func (e *env) Close() error {
	if e.container != nil {
		e.container.Wait()
	}

	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
