package cache

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-goal-cache/model"
)

func TestDefaultKeySerializer_CountKey(t *testing.T) {
	s := NewDefaultKeySerializer()

	got := s.CountKey(model.KindNotes, "g1")
	if got != "count::notes::g1" {
		t.Errorf("expected count::notes::g1, got %s", got)
	}

	if s.CountKey(model.KindNotes, "g1") == s.CountKey(model.KindAccomplishments, "g1") {
		t.Error("expected kinds to produce distinct keys")
	}
}

func TestDefaultKeySerializer_BatchKey(t *testing.T) {
	s := NewDefaultKeySerializer()

	tests := []struct {
		name string
		a    []string
		b    []string
		same bool
	}{
		{name: "order does not matter", a: []string{"a", "b", "c"}, b: []string{"c", "a", "b"}, same: true},
		{name: "duplicates collapse", a: []string{"a", "b", "b"}, b: []string{"b", "a"}, same: true},
		{name: "overlapping sets differ", a: []string{"a", "b"}, b: []string{"b", "c"}},
		{name: "subset differs", a: []string{"a", "b"}, b: []string{"a"}},
		{name: "concatenation is not confused", a: []string{"ab", "c"}, b: []string{"a", "bc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, kb := s.BatchKey(tt.a), s.BatchKey(tt.b)
			if (ka == kb) != tt.same {
				t.Errorf("BatchKey(%v)=%s BatchKey(%v)=%s, want same=%v", tt.a, ka, tt.b, kb, tt.same)
			}
		})
	}
}

func TestDefaultKeySerializer_BatchKeyPrefix(t *testing.T) {
	key := NewDefaultKeySerializer().BatchKey([]string{"b", "a"})
	if !strings.HasPrefix(key, "batch::2::") {
		t.Errorf("expected batch::2:: prefix, got %s", key)
	}
}

func TestNormalizeIDs(t *testing.T) {
	got := NormalizeIDs([]string{"c", "", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeIDs mismatch (-want +got):\n%s", diff)
	}

	input := []string{"b", "a"}
	NormalizeIDs(input)
	if input[0] != "b" {
		t.Error("expected input slice to be left untouched")
	}
}
