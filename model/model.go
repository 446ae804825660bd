// Package model holds the goal tracker records and the count kinds derived from them.
package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-goal-cache/ids"
)

// Kind names a derived per-goal count.
type Kind string

const (
	KindNotes           Kind = "notes"
	KindAccomplishments Kind = "accomplishments"
)

// Kinds returns every count kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindNotes, KindAccomplishments}
}

// BatchCounts maps each kind to the per-goal counts returned by a batch query.
type BatchCounts map[Kind]map[string]int

// Get returns the count for id under kind, zero when absent.
func (b BatchCounts) Get(kind Kind, id string) int {
	return b[kind][id]
}

// Goal is a weekly goal owned by a user.
type Goal struct {
	ID          ids.ID    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	WeekStart   time.Time `json:"week_start"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the user supplied fields.
func (g Goal) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&g.Description, validation.Length(0, 2000)),
	)
}

// Note is free-form text attached to a goal.
type Note struct {
	ID        ids.ID    `json:"id"`
	GoalID    ids.ID    `json:"goal_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the user supplied fields.
func (n Note) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.GoalID, validation.By(requiredID)),
		validation.Field(&n.Title, validation.Length(0, 200)),
		validation.Field(&n.Content, validation.Required, validation.Length(1, 20000)),
	)
}

// Accomplishment records something achieved toward a goal.
type Accomplishment struct {
	ID          ids.ID    `json:"id"`
	GoalID      ids.ID    `json:"goal_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Impact      int       `json:"impact"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the user supplied fields.
func (a Accomplishment) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.GoalID, validation.By(requiredID)),
		validation.Field(&a.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&a.Description, validation.Length(0, 2000)),
		validation.Field(&a.Impact, validation.Min(0), validation.Max(5)),
	)
}

func requiredID(value any) error {
	id, ok := value.(ids.ID)
	if !ok || id.IsZero() {
		return errors.New("cannot be blank")
	}
	return nil
}
