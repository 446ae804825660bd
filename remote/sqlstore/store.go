// Package sqlstore serves counts and records from a SQL database. Records go
// through go-repository-bun; the grouped batch count is a raw bun query.
// It backs the CLI and tests; the cache layers treat it like any other remote.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/model"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a record does not exist for the user.
	ErrNotFound = errors.New("sqlstore: record not found")
	// ErrTemporaryOwner rejects children whose goal id was never persisted.
	ErrTemporaryOwner = errors.New("sqlstore: owner id is temporary")
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the query logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock used for server timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store owns the database handle.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
	now    func() time.Time

	goals           *Records[model.Goal, GoalRow]
	notes           *Records[model.Note, NoteRow]
	accomplishments *Records[model.Accomplishment, AccomplishmentRow]
}

// Open connects to dsn with driver (DriverSQLite or DriverPostgres).
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}

	var db *bun.DB
	switch driver {
	case DriverSQLite:
		// :memory: databases exist per connection.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		_ = sqldb.Close()
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.goals = newRecords(s, goalMapping())
	s.notes = newRecords(s, noteMapping())
	s.accomplishments = newRecords(s, accomplishmentMapping())
	return s, nil
}

// DB returns the bun handle.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*GoalRow)(nil),
		(*NoteRow)(nil),
		(*AccomplishmentRow)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}

	indexes := []struct {
		model any
		name  string
	}{
		{(*NoteRow)(nil), "notes_user_goal_idx"},
		{(*AccomplishmentRow)(nil), "accomplishments_user_goal_idx"},
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			IfNotExists().
			Column("user_id", "goal_id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sqlstore: migrate index %s: %w", idx.name, err)
		}
	}

	s.logger.Debug("schema migrated")
	return nil
}

func (s *Store) childModel(kind model.Kind) (any, error) {
	switch kind {
	case model.KindNotes:
		return (*NoteRow)(nil), nil
	case model.KindAccomplishments:
		return (*AccomplishmentRow)(nil), nil
	default:
		return nil, fmt.Errorf("sqlstore: unknown count kind %q", kind)
	}
}

// Count returns the number of kind records under ownerID for user.
func (s *Store) Count(ctx context.Context, user *identity.User, kind model.Kind, ownerID string) (int, error) {
	if user == nil {
		return 0, identity.ErrUnauthenticated
	}
	switch kind {
	case model.KindNotes:
		return s.notes.Count(ctx, user, ownerID)
	case model.KindAccomplishments:
		return s.accomplishments.Count(ctx, user, ownerID)
	default:
		return 0, fmt.Errorf("sqlstore: unknown count kind %q", kind)
	}
}

type groupCount struct {
	GoalID string `bun:"goal_id"`
	N      int    `bun:"n"`
}

// CountMany returns every kind count for ownerIDs with one grouped query per
// kind. Owners without records are absent from the result.
func (s *Store) CountMany(ctx context.Context, user *identity.User, ownerIDs []string) (model.BatchCounts, error) {
	if user == nil {
		return nil, identity.ErrUnauthenticated
	}

	out := make(model.BatchCounts, len(model.Kinds()))
	if len(ownerIDs) == 0 {
		return out, nil
	}

	for _, kind := range model.Kinds() {
		m, err := s.childModel(kind)
		if err != nil {
			return nil, err
		}

		var rows []groupCount
		err = s.db.NewSelect().
			Model(m).
			Column("goal_id").
			ColumnExpr("COUNT(*) AS n").
			Where("user_id = ?", user.ID).
			Where("goal_id IN (?)", bun.In(ownerIDs)).
			Group("goal_id").
			Scan(ctx, &rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: count %s: %w", kind, err)
		}

		byID := make(map[string]int, len(rows))
		for _, r := range rows {
			byID[r.GoalID] = r.N
		}
		out[kind] = byID
	}
	return out, nil
}
