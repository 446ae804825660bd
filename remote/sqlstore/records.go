package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
)

// mapping converts between a domain record T and its table row R.
type mapping[T, R any] struct {
	// ownerColumn filters List by owner. Empty lists every record of the user.
	ownerColumn string
	toRow       func(T) R
	toModel     func(R) T
	id          func(T) ids.ID
	owner       func(T) ids.ID
	rowID       func(*R) string
	setRowID    func(*R, string)
	stamp       func(r *R, userID string, now time.Time, creating bool)
	// editable lists the columns an update writes.
	editable func(*R) []repository.UpdateCriteria
}

// Records serves one record type for the authenticated user.
type Records[T, R any] struct {
	store *Store
	repo  repository.Repository[*R]
	m     mapping[T, R]
}

func newRecords[T, R any](s *Store, m mapping[T, R]) *Records[T, R] {
	handlers := repository.ModelHandlers[*R]{
		NewRecord: func() *R { return new(R) },
		GetID: func(r *R) uuid.UUID {
			id, err := uuid.Parse(m.rowID(r))
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(r *R, id uuid.UUID) {
			m.setRowID(r, id.String())
		},
		GetIdentifier: func() string { return "id" },
	}
	return &Records[T, R]{
		store: s,
		repo:  repository.NewRepository(s.db, handlers),
		m:     m,
	}
}

// Goals returns the goals source.
func (s *Store) Goals() *Records[model.Goal, GoalRow] {
	return s.goals
}

// Notes returns the notes source.
func (s *Store) Notes() *Records[model.Note, NoteRow] {
	return s.notes
}

// Accomplishments returns the accomplishments source.
func (s *Store) Accomplishments() *Records[model.Accomplishment, AccomplishmentRow] {
	return s.accomplishments
}

// Repository exposes the generic repository behind the source.
func (r *Records[T, R]) Repository() repository.Repository[*R] {
	return r.repo
}

func (r *Records[T, R]) now() time.Time {
	return r.store.now().UTC().Truncate(time.Millisecond)
}

// List returns the user's records under ownerID, newest first.
func (r *Records[T, R]) List(ctx context.Context, user *identity.User, ownerID string) ([]T, error) {
	if user == nil {
		return nil, identity.ErrUnauthenticated
	}

	criteria := []repository.SelectCriteria{
		repository.SelectBy("user_id", "=", user.ID),
		repository.OrderBy("created_at DESC", "id DESC"),
		// No limit.
		repository.SelectPaginate(0, 0),
	}
	if r.m.ownerColumn != "" && ownerID != "" {
		criteria = append(criteria, repository.SelectBy(r.m.ownerColumn, "=", ownerID))
	}

	rows, _, err := r.repo.List(ctx, criteria...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list: %w", err)
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.toModel(*row))
	}
	return out, nil
}

// Count returns how many of the user's records sit under ownerID.
func (r *Records[T, R]) Count(ctx context.Context, user *identity.User, ownerID string) (int, error) {
	if user == nil {
		return 0, identity.ErrUnauthenticated
	}
	if r.m.ownerColumn == "" {
		return 0, fmt.Errorf("sqlstore: records have no owner column")
	}
	return r.repo.Count(ctx,
		repository.SelectBy("user_id", "=", user.ID),
		repository.SelectBy(r.m.ownerColumn, "=", ownerID),
	)
}

// Create stores record under a new uuid and returns the stored form.
func (r *Records[T, R]) Create(ctx context.Context, user *identity.User, record T) (T, error) {
	var zero T
	if user == nil {
		return zero, identity.ErrUnauthenticated
	}
	if r.m.owner(record).IsTemporary() {
		return zero, ErrTemporaryOwner
	}

	row := r.m.toRow(record)
	// The repository assigns the uuid.
	r.m.setRowID(&row, "")
	r.m.stamp(&row, user.ID, r.now(), true)

	created, err := r.repo.Create(ctx, &row)
	if err != nil {
		return zero, fmt.Errorf("sqlstore: insert: %w", err)
	}
	return r.m.toModel(*created), nil
}

// Update overwrites the editable fields of the user's record with the same
// id. created_at is kept.
func (r *Records[T, R]) Update(ctx context.Context, user *identity.User, record T) (T, error) {
	var zero T
	if user == nil {
		return zero, identity.ErrUnauthenticated
	}

	id := r.m.id(record).String()
	if id == "" {
		return zero, ErrNotFound
	}
	row := r.m.toRow(record)
	r.m.setRowID(&row, id)
	r.m.stamp(&row, user.ID, r.now(), false)

	criteria := append([]repository.UpdateCriteria{
		repository.UpdateBy("user_id", "=", user.ID),
	}, r.m.editable(&row)...)

	updated, err := r.repo.Update(ctx, &row, criteria...)
	switch {
	case repository.IsSQLExpectedCountViolation(err) || repository.IsRecordNotFound(err):
		return zero, ErrNotFound
	case err != nil:
		return zero, fmt.Errorf("sqlstore: update: %w", err)
	}
	return r.m.toModel(*updated), nil
}

// Delete removes the user's record with id.
func (r *Records[T, R]) Delete(ctx context.Context, user *identity.User, id string) error {
	if user == nil {
		return identity.ErrUnauthenticated
	}

	row, err := r.repo.Get(ctx,
		repository.SelectByID(id),
		repository.SelectBy("user_id", "=", user.ID),
	)
	switch {
	case repository.IsRecordNotFound(err):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("sqlstore: delete: %w", err)
	}

	if err := r.repo.Delete(ctx, row); err != nil {
		return fmt.Errorf("sqlstore: delete: %w", err)
	}
	return nil
}
