package optimistic

import (
	"time"

	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
)

// Handlers give a Collection access to the fields it manages on T.
type Handlers[T any] struct {
	GetID    func(T) ids.ID
	SetID    func(*T, ids.ID)
	GetOwner func(T) ids.ID
	SetOwner func(*T, ids.ID)
	// Stamp sets timestamps. creating is true for placeholders.
	Stamp    func(rec *T, now time.Time, creating bool)
	Validate func(T) error
}

// GoalHandlers manages goals. A goal's owner is its user.
func GoalHandlers() Handlers[model.Goal] {
	return Handlers[model.Goal]{
		GetID:    func(g model.Goal) ids.ID { return g.ID },
		SetID:    func(g *model.Goal, id ids.ID) { g.ID = id },
		GetOwner: func(g model.Goal) ids.ID { return ids.Persisted(g.UserID) },
		SetOwner: func(g *model.Goal, owner ids.ID) { g.UserID = owner.String() },
		Stamp: func(g *model.Goal, now time.Time, creating bool) {
			if creating {
				g.CreatedAt = now
			}
			g.UpdatedAt = now
		},
		Validate: model.Goal.Validate,
	}
}

// NoteHandlers manages notes owned by a goal.
func NoteHandlers() Handlers[model.Note] {
	return Handlers[model.Note]{
		GetID:    func(n model.Note) ids.ID { return n.ID },
		SetID:    func(n *model.Note, id ids.ID) { n.ID = id },
		GetOwner: func(n model.Note) ids.ID { return n.GoalID },
		SetOwner: func(n *model.Note, owner ids.ID) { n.GoalID = owner },
		Stamp: func(n *model.Note, now time.Time, creating bool) {
			if creating {
				n.CreatedAt = now
			}
			n.UpdatedAt = now
		},
		Validate: model.Note.Validate,
	}
}

// AccomplishmentHandlers manages accomplishments owned by a goal.
func AccomplishmentHandlers() Handlers[model.Accomplishment] {
	return Handlers[model.Accomplishment]{
		GetID:    func(a model.Accomplishment) ids.ID { return a.ID },
		SetID:    func(a *model.Accomplishment, id ids.ID) { a.ID = id },
		GetOwner: func(a model.Accomplishment) ids.ID { return a.GoalID },
		SetOwner: func(a *model.Accomplishment, owner ids.ID) { a.GoalID = owner },
		Stamp: func(a *model.Accomplishment, now time.Time, creating bool) {
			if creating {
				a.CreatedAt = now
			}
			a.UpdatedAt = now
		},
		Validate: model.Accomplishment.Validate,
	}
}
