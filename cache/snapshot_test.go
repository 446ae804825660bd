package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-goal-cache/model"
)

func TestSnapshot_PublishOnlyOnChange(t *testing.T) {
	s := NewSnapshot()

	var changes []Change
	remove := s.OnChange(func(c Change) { changes = append(changes, c) })
	defer remove()

	if !s.Publish(model.KindNotes, "g1", 2) {
		t.Error("expected first publish to change the snapshot")
	}
	if s.Publish(model.KindNotes, "g1", 2) {
		t.Error("expected identical publish to be a no-op")
	}
	if !s.Publish(model.KindNotes, "g1", 3) {
		t.Error("expected new value to change the snapshot")
	}

	want := []Change{
		{Kind: model.KindNotes, ID: "g1", Count: 2, Version: 1},
		{Kind: model.KindNotes, ID: "g1", Count: 3, Version: 2},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if s.Version() != 2 {
		t.Errorf("expected version 2, got %d", s.Version())
	}
}

func TestSnapshot_ZeroIsAValue(t *testing.T) {
	s := NewSnapshot()

	if !s.Publish(model.KindAccomplishments, "g1", 0) {
		t.Error("expected first zero publish to be visible")
	}

	count, ok := s.Get(model.KindAccomplishments, "g1")
	if !ok || count != 0 {
		t.Errorf("expected published zero, got %d ok=%v", count, ok)
	}
	if _, ok := s.Get(model.KindNotes, "g1"); ok {
		t.Error("expected notes to be unpublished")
	}
}

func TestSnapshot_CountsIsACopy(t *testing.T) {
	s := NewSnapshot()
	s.Publish(model.KindNotes, "g1", 1)

	counts := s.Counts(model.KindNotes)
	counts["g1"] = 99

	if got, _ := s.Get(model.KindNotes, "g1"); got != 1 {
		t.Errorf("expected snapshot to be unaffected by caller edits, got %d", got)
	}
}

func TestSnapshot_RemoveListener(t *testing.T) {
	s := NewSnapshot()

	calls := 0
	remove := s.OnChange(func(Change) { calls++ })
	s.Publish(model.KindNotes, "g1", 1)
	remove()
	s.Publish(model.KindNotes, "g1", 2)

	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}
}

func TestSnapshot_DeliversInVersionOrder(t *testing.T) {
	s := NewSnapshot()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	var mu sync.Mutex
	var seen []uint64
	remove := s.OnChange(func(c Change) {
		once.Do(func() {
			close(entered)
			<-release
		})
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.Version)
	})
	defer remove()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Publish(model.KindNotes, "g1", 1)
	}()
	<-entered

	go func() {
		defer wg.Done()
		s.Publish(model.KindNotes, "g1", 2)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]uint64{1, 2}, seen); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
	if got, _ := s.Get(model.KindNotes, "g1"); got != 2 {
		t.Errorf("expected final count 2, got %d", got)
	}
}

func TestSnapshot_ListenersRunInRegistrationOrder(t *testing.T) {
	s := NewSnapshot()

	var order []string
	for _, name := range []string{"a", "b", "c", "d"} {
		name := name
		s.OnChange(func(Change) { order = append(order, name) })
	}
	s.Publish(model.KindNotes, "g1", 1)

	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, order); diff != "" {
		t.Errorf("listener order mismatch (-want +got):\n%s", diff)
	}
}
