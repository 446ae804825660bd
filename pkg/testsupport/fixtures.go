package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-goal-cache/model"
)

// Seed is the record set a test database starts from.
type Seed struct {
	Goals           []model.Goal           `json:"goals"`
	Notes           []model.Note           `json:"notes"`
	Accomplishments []model.Accomplishment `json:"accomplishments"`
}

// FixturePath joins filename onto the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// LoadSeed reads a JSON seed from path and fails the test unless every record
// validates and every child points at a seeded goal.
func LoadSeed(t testing.TB, path string) Seed {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load seed from %s: %v", path, err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		t.Fatalf("failed to unmarshal seed from %s: %v", path, err)
	}
	if err := seed.Check(); err != nil {
		t.Fatalf("invalid seed %s: %v", path, err)
	}
	return seed
}

// Check validates every record and the goal each child belongs to.
func (s Seed) Check() error {
	goals := make(map[string]bool, len(s.Goals))
	for _, g := range s.Goals {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("goal %s: %w", g.ID, err)
		}
		goals[g.ID.String()] = true
	}

	child := func(kind model.Kind, id, goalID string) error {
		if !goals[goalID] {
			return fmt.Errorf("%s %s: unknown goal %s", kind, id, goalID)
		}
		return nil
	}

	for _, n := range s.Notes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("note %s: %w", n.ID, err)
		}
		if err := child(model.KindNotes, n.ID.String(), n.GoalID.String()); err != nil {
			return err
		}
	}
	for _, a := range s.Accomplishments {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("accomplishment %s: %w", a.ID, err)
		}
		if err := child(model.KindAccomplishments, a.ID.String(), a.GoalID.String()); err != nil {
			return err
		}
	}
	return nil
}

// Counts returns the per goal child counts userID should see.
func (s Seed) Counts(userID string) model.BatchCounts {
	out := model.BatchCounts{
		model.KindNotes:           {},
		model.KindAccomplishments: {},
	}
	for _, n := range s.Notes {
		if n.UserID == userID {
			out[model.KindNotes][n.GoalID.String()]++
		}
	}
	for _, a := range s.Accomplishments {
		if a.UserID == userID {
			out[model.KindAccomplishments][a.GoalID.String()]++
		}
	}
	return out
}
