package sqlstore

import (
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
)

// GoalRow is the goals table.
type GoalRow struct {
	bun.BaseModel `bun:"table:goals"`

	ID          string    `bun:"id,pk"`
	UserID      string    `bun:"user_id,notnull"`
	Title       string    `bun:"title,notnull"`
	Description string    `bun:"description,notnull"`
	WeekStart   time.Time `bun:"week_start,nullzero"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

// NoteRow is the notes table.
type NoteRow struct {
	bun.BaseModel `bun:"table:notes"`

	ID        string    `bun:"id,pk"`
	GoalID    string    `bun:"goal_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	Title     string    `bun:"title,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// AccomplishmentRow is the accomplishments table.
type AccomplishmentRow struct {
	bun.BaseModel `bun:"table:accomplishments"`

	ID          string    `bun:"id,pk"`
	GoalID      string    `bun:"goal_id,notnull"`
	UserID      string    `bun:"user_id,notnull"`
	Title       string    `bun:"title,notnull"`
	Description string    `bun:"description,notnull"`
	Impact      int       `bun:"impact,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func goalMapping() mapping[model.Goal, GoalRow] {
	return mapping[model.Goal, GoalRow]{
		ownerColumn: "",
		toRow: func(g model.Goal) GoalRow {
			return GoalRow{
				ID:          g.ID.String(),
				UserID:      g.UserID,
				Title:       strings.TrimSpace(g.Title),
				Description: strings.TrimSpace(g.Description),
				WeekStart:   g.WeekStart,
				CreatedAt:   g.CreatedAt,
				UpdatedAt:   g.UpdatedAt,
			}
		},
		toModel: func(r GoalRow) model.Goal {
			return model.Goal{
				ID:          ids.Persisted(r.ID),
				UserID:      r.UserID,
				Title:       r.Title,
				Description: r.Description,
				WeekStart:   r.WeekStart,
				CreatedAt:   r.CreatedAt,
				UpdatedAt:   r.UpdatedAt,
			}
		},
		id:       func(g model.Goal) ids.ID { return g.ID },
		owner:    func(model.Goal) ids.ID { return ids.ID{} },
		rowID:    func(r *GoalRow) string { return r.ID },
		setRowID: func(r *GoalRow, id string) { r.ID = id },
		stamp: func(r *GoalRow, userID string, now time.Time, creating bool) {
			r.UserID, r.UpdatedAt = userID, now
			if creating {
				r.CreatedAt = now
			}
		},
		editable: func(r *GoalRow) []repository.UpdateCriteria {
			return []repository.UpdateCriteria{
				repository.UpdateSetColumn("title", r.Title),
				repository.UpdateSetColumn("description", r.Description),
				repository.UpdateSetColumn("updated_at", r.UpdatedAt),
			}
		},
	}
}

func noteMapping() mapping[model.Note, NoteRow] {
	return mapping[model.Note, NoteRow]{
		ownerColumn: "goal_id",
		toRow: func(n model.Note) NoteRow {
			return NoteRow{
				ID:        n.ID.String(),
				GoalID:    n.GoalID.String(),
				UserID:    n.UserID,
				Title:     strings.TrimSpace(n.Title),
				Content:   strings.TrimSpace(n.Content),
				CreatedAt: n.CreatedAt,
				UpdatedAt: n.UpdatedAt,
			}
		},
		toModel: func(r NoteRow) model.Note {
			return model.Note{
				ID:        ids.Persisted(r.ID),
				GoalID:    ids.Persisted(r.GoalID),
				UserID:    r.UserID,
				Title:     r.Title,
				Content:   r.Content,
				CreatedAt: r.CreatedAt,
				UpdatedAt: r.UpdatedAt,
			}
		},
		id:       func(n model.Note) ids.ID { return n.ID },
		owner:    func(n model.Note) ids.ID { return n.GoalID },
		rowID:    func(r *NoteRow) string { return r.ID },
		setRowID: func(r *NoteRow, id string) { r.ID = id },
		stamp: func(r *NoteRow, userID string, now time.Time, creating bool) {
			r.UserID, r.UpdatedAt = userID, now
			if creating {
				r.CreatedAt = now
			}
		},
		editable: func(r *NoteRow) []repository.UpdateCriteria {
			return []repository.UpdateCriteria{
				repository.UpdateSetColumn("title", r.Title),
				repository.UpdateSetColumn("content", r.Content),
				repository.UpdateSetColumn("updated_at", r.UpdatedAt),
			}
		},
	}
}

func accomplishmentMapping() mapping[model.Accomplishment, AccomplishmentRow] {
	return mapping[model.Accomplishment, AccomplishmentRow]{
		ownerColumn: "goal_id",
		toRow: func(a model.Accomplishment) AccomplishmentRow {
			return AccomplishmentRow{
				ID:          a.ID.String(),
				GoalID:      a.GoalID.String(),
				UserID:      a.UserID,
				Title:       strings.TrimSpace(a.Title),
				Description: strings.TrimSpace(a.Description),
				Impact:      a.Impact,
				CreatedAt:   a.CreatedAt,
				UpdatedAt:   a.UpdatedAt,
			}
		},
		toModel: func(r AccomplishmentRow) model.Accomplishment {
			return model.Accomplishment{
				ID:          ids.Persisted(r.ID),
				GoalID:      ids.Persisted(r.GoalID),
				UserID:      r.UserID,
				Title:       r.Title,
				Description: r.Description,
				Impact:      r.Impact,
				CreatedAt:   r.CreatedAt,
				UpdatedAt:   r.UpdatedAt,
			}
		},
		id:       func(a model.Accomplishment) ids.ID { return a.ID },
		owner:    func(a model.Accomplishment) ids.ID { return a.GoalID },
		rowID:    func(r *AccomplishmentRow) string { return r.ID },
		setRowID: func(r *AccomplishmentRow, id string) { r.ID = id },
		stamp: func(r *AccomplishmentRow, userID string, now time.Time, creating bool) {
			r.UserID, r.UpdatedAt = userID, now
			if creating {
				r.CreatedAt = now
			}
		},
		editable: func(r *AccomplishmentRow) []repository.UpdateCriteria {
			return []repository.UpdateCriteria{
				repository.UpdateSetColumn("title", r.Title),
				repository.UpdateSetColumn("description", r.Description),
				repository.UpdateSetColumn("impact", r.Impact),
				repository.UpdateSetColumn("updated_at", r.UpdatedAt),
			}
		},
	}
}
