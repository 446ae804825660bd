package optimistic

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
	"github.com/goliatone/go-goal-cache/pkg/testsupport"
	"github.com/goliatone/go-goal-cache/reconcile"
)

var fixedNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// recordingCounts records count corrections in call order.
type recordingCounts struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingCounts) Adjust(kind model.Kind, id ids.ID, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("adjust:%s:%s:%+d", kind, id, delta))
}

func (r *recordingCounts) Refresh(ctx context.Context, kind model.Kind, id ids.ID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("refresh:%s:%s", kind, id))
	return 0, true
}

func (r *recordingCounts) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// recordingNotifier captures rollbacks.
type recordingNotifier struct {
	mu       sync.Mutex
	failures []Failure
}

func (n *recordingNotifier) Notify(_ context.Context, f Failure) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, f)
}

func (n *recordingNotifier) Failures() []Failure {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Failure(nil), n.failures...)
}

type noteFixture struct {
	notes    *Collection[model.Note]
	source   *testsupport.RecordSource[model.Note]
	counts   *recordingCounts
	notifier *recordingNotifier
	bus      *reconcile.Bus
}

func newNoteFixture(t *testing.T, user *identity.User) noteFixture {
	t.Helper()

	f := noteFixture{
		source:   testsupport.NoteSource(),
		counts:   &recordingCounts{},
		notifier: &recordingNotifier{},
		bus:      reconcile.NewBus(),
	}
	f.notes = NewCollection("notes", f.source, NoteHandlers(), identity.NewResolver(identity.Static(user)),
		WithCounts(f.counts, model.KindNotes),
		WithNotifier(f.notifier),
		WithReconciler(f.bus),
		WithNow(func() time.Time { return fixedNow }),
	)
	return f
}

func waitMutation[T any](t *testing.T, m *Mutation[T]) (T, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := m.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "mutation did not settle")
	return rec, err
}

func TestCollection_CreateIsVisibleBeforeRemote(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	gate := f.source.Block("Create")

	m, err := f.notes.Create(context.Background(), goal, model.Note{Content: "ran 5k"})
	require.NoError(t, err)

	items := f.notes.Items(goal)
	require.Len(t, items, 1)
	assert.True(t, items[0].ID.IsTemporary())
	assert.Equal(t, m.ID(), items[0].ID)
	assert.Equal(t, goal, items[0].GoalID)
	assert.Equal(t, fixedNow, items[0].CreatedAt)
	assert.Equal(t, Pending, m.State())

	gate.Release()
	saved, err := waitMutation(t, m)
	require.NoError(t, err)

	assert.Equal(t, Reconciled, m.State())
	assert.Equal(t, "n-1", saved.ID.String())

	items = f.notes.Items(goal)
	require.Len(t, items, 1)
	assert.Equal(t, "n-1", items[0].ID.String())
	assert.Equal(t, []string{"Create", "List"}, f.source.Calls())
	assert.Equal(t, []string{"adjust:notes:g1:+1", "refresh:notes:g1"}, f.counts.Calls())
}

func TestCollection_CreateRollsBackOnRemoteFailure(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	f.source.FailWith("Create", testsupport.ErrRemote)

	m, err := f.notes.Create(context.Background(), goal, model.Note{Content: "ran 5k"})
	require.NoError(t, err)

	_, err = waitMutation(t, m)
	require.ErrorIs(t, err, testsupport.ErrRemote)

	assert.Equal(t, RolledBack, m.State())
	assert.Empty(t, f.notes.Items(goal))
	assert.Empty(t, f.counts.Calls())

	failures := f.notifier.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "create", failures[0].Op)
	assert.Equal(t, "notes", failures[0].Resource)
	assert.Equal(t, m.ID(), failures[0].ID)
}

func TestCollection_CreateValidationError(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")

	m, err := f.notes.Create(context.Background(), goal, model.Note{})
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Empty(t, f.notes.Items(goal))
	assert.Empty(t, f.source.Calls())
}

func TestCollection_CreateUnauthenticated(t *testing.T) {
	f := newNoteFixture(t, nil)
	goal := ids.Persisted("g1")

	m, err := f.notes.Create(context.Background(), goal, model.Note{Content: "ran 5k"})
	require.NoError(t, err)

	_, err = waitMutation(t, m)
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, RolledBack, m.State())
	assert.Empty(t, f.notes.Items(goal))
	assert.Zero(t, f.source.CallCount("Create"))
	assert.Len(t, f.notifier.Failures(), 1)
}

func TestCollection_CreateUnderPendingOwner(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Temporary("T1")

	m, err := f.notes.Create(context.Background(), goal, model.Note{Content: "ran 5k"})
	require.NoError(t, err)

	_, err = waitMutation(t, m)
	require.ErrorIs(t, err, ErrOwnerPending)
	assert.Empty(t, f.notes.Items(goal))
	assert.Zero(t, f.source.CallCount("Create"))
}

func TestCollection_CreateUnderResolvedOwner(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Temporary("T1")
	f.bus.Resolve(goal, ids.Persisted("g-42"))

	m, err := f.notes.Create(context.Background(), goal, model.Note{Content: "ran 5k"})
	require.NoError(t, err)

	saved, err := waitMutation(t, m)
	require.NoError(t, err)
	assert.Equal(t, "g-42", saved.GoalID.String())

	records := f.source.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "g-42", records[0].GoalID.String())
	assert.Equal(t, []string{"adjust:notes:g-42:+1", "refresh:notes:g-42"}, f.counts.Calls())
}

func TestCollection_IndependentSubmissions(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	note := model.Note{Content: "same text"}

	m1, err := f.notes.Create(context.Background(), goal, note)
	require.NoError(t, err)
	m2, err := f.notes.Create(context.Background(), goal, note)
	require.NoError(t, err)

	assert.NotEqual(t, m1.ID(), m2.ID())

	f.notes.Wait()
	assert.Equal(t, 2, f.source.CallCount("Create"))
	assert.Len(t, f.notes.Items(goal), 2)
}

func TestCollection_CreateReplaceInPlaceResolvesBus(t *testing.T) {
	source := testsupport.GoalSource()
	bus := reconcile.NewBus()
	goals := NewCollection("goals", source, GoalHandlers(), identity.NewResolver(identity.Static(testsupport.User)),
		WithPolicy(ReplaceInPlace),
		WithReconciler(bus),
	)
	owner := ids.Persisted(testsupport.User.ID)
	gate := source.Block("Create")

	m, err := goals.Create(context.Background(), owner, model.Goal{Title: "Run 3x"})
	require.NoError(t, err)

	var resolved []string
	bus.Subscribe(m.ID(), func(real ids.ID) { resolved = append(resolved, real.String()) })
	ref := reconcile.NewRef(bus, m.ID())
	defer ref.Close()

	gate.Release()
	saved, err := waitMutation(t, m)
	require.NoError(t, err)

	assert.Equal(t, "g-1", saved.ID.String())
	assert.Equal(t, []string{"g-1"}, resolved)
	assert.Equal(t, saved.ID, ref.ID())
	assert.Equal(t, 0, bus.Pending(m.ID()))

	items := goals.Items(owner)
	require.Len(t, items, 1)
	assert.Equal(t, saved.ID, items[0].ID)
	assert.Zero(t, source.CallCount("List"))
}

func TestCollection_Load(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	f.source.Seed(
		model.Note{ID: ids.Persisted("n-a"), GoalID: goal, Content: "a"},
		model.Note{ID: ids.Persisted("n-b"), GoalID: ids.Persisted("g2"), Content: "b"},
	)

	items, err := f.notes.Load(context.Background(), goal)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n-a", items[0].ID.String())
	assert.Equal(t, items, f.notes.Items(goal))
}

func TestCollection_LoadKeepsPendingPlaceholders(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	f.source.Seed(model.Note{ID: ids.Persisted("n-a"), GoalID: goal, Content: "a"})
	gate := f.source.Block("Create")
	defer gate.Release()

	m, err := f.notes.Create(context.Background(), goal, model.Note{Content: "pending"})
	require.NoError(t, err)

	items, err := f.notes.Load(context.Background(), goal)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, m.ID(), items[0].ID)
	assert.Equal(t, "n-a", items[1].ID.String())
}

func TestCollection_LoadTemporaryOwner(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)

	items, err := f.notes.Load(context.Background(), ids.Temporary("T1"))
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, f.source.Calls())
}

func TestCollection_LoadUnauthenticated(t *testing.T) {
	f := newNoteFixture(t, nil)

	_, err := f.notes.Load(context.Background(), ids.Persisted("g1"))
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCollection_Update(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	original := model.Note{ID: ids.Persisted("n-a"), GoalID: goal, Content: "before"}
	f.source.Seed(original)
	_, err := f.notes.Load(context.Background(), goal)
	require.NoError(t, err)

	gate := f.source.Block("Update")
	edited := original
	edited.Content = "after"

	m, err := f.notes.Update(context.Background(), goal, edited)
	require.NoError(t, err)
	assert.Equal(t, "after", f.notes.Items(goal)[0].Content)

	gate.Release()
	_, err = waitMutation(t, m)
	require.NoError(t, err)
	assert.Equal(t, Reconciled, m.State())
	assert.Equal(t, "after", f.source.Records()[0].Content)
}

func TestCollection_UpdateRollsBack(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	original := model.Note{ID: ids.Persisted("n-a"), GoalID: goal, Content: "before"}
	f.source.Seed(original)
	_, err := f.notes.Load(context.Background(), goal)
	require.NoError(t, err)
	f.source.FailWith("Update", testsupport.ErrRemote)

	edited := original
	edited.Content = "after"
	m, err := f.notes.Update(context.Background(), goal, edited)
	require.NoError(t, err)

	_, err = waitMutation(t, m)
	require.ErrorIs(t, err, testsupport.ErrRemote)
	assert.Equal(t, []model.Note{original}, f.notes.Items(goal))
	assert.Len(t, f.notifier.Failures(), 1)
}

func TestCollection_UpdateTemporaryRecord(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)

	_, err := f.notes.Update(context.Background(), ids.Persisted("g1"), model.Note{ID: ids.Temporary("x"), Content: "a"})
	require.ErrorIs(t, err, ErrNotPersisted)
	assert.Empty(t, f.source.Calls())
}

func TestCollection_Delete(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	f.source.Seed(model.Note{ID: ids.Persisted("n-a"), GoalID: goal, Content: "a"})
	_, err := f.notes.Load(context.Background(), goal)
	require.NoError(t, err)

	m, err := f.notes.Delete(context.Background(), goal, ids.Persisted("n-a"))
	require.NoError(t, err)
	assert.Empty(t, f.notes.Items(goal))

	_, err = waitMutation(t, m)
	require.NoError(t, err)
	assert.Empty(t, f.source.Records())
	assert.Equal(t, []string{"adjust:notes:g1:-1", "refresh:notes:g1"}, f.counts.Calls())
}

func TestCollection_DeleteRollsBackToOriginalPosition(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")
	f.source.Seed(
		model.Note{ID: ids.Persisted("n-c"), GoalID: goal, Content: "c"},
		model.Note{ID: ids.Persisted("n-b"), GoalID: goal, Content: "b"},
		model.Note{ID: ids.Persisted("n-a"), GoalID: goal, Content: "a"},
	)
	before, err := f.notes.Load(context.Background(), goal)
	require.NoError(t, err)
	f.source.FailWith("Delete", testsupport.ErrRemote)

	m, err := f.notes.Delete(context.Background(), goal, ids.Persisted("n-b"))
	require.NoError(t, err)

	_, err = waitMutation(t, m)
	require.ErrorIs(t, err, testsupport.ErrRemote)
	assert.Equal(t, before, f.notes.Items(goal))
	assert.Empty(t, f.counts.Calls())
}

func TestCollection_DeleteTemporaryRecord(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)

	_, err := f.notes.Delete(context.Background(), ids.Persisted("g1"), ids.Temporary("x"))
	require.ErrorIs(t, err, ErrNotPersisted)
}

func TestCollection_OnChange(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	goal := ids.Persisted("g1")

	var mu sync.Mutex
	var sizes []int
	remove := f.notes.OnChange(func(owner ids.ID, items []model.Note) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(items))
	})
	defer remove()

	m, err := f.notes.Create(context.Background(), goal, model.Note{Content: "a"})
	require.NoError(t, err)
	_, err = waitMutation(t, m)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, sizes)
	assert.Equal(t, 1, sizes[0])
}

func TestCollection_OnChangeDeliversInCommitOrder(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)
	gate := f.source.Block("Create")
	goal := ids.Persisted("g1")
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	var mu sync.Mutex
	var last []model.Note
	remove := f.notes.OnChange(func(owner ids.ID, items []model.Note) {
		once.Do(func() {
			close(entered)
			<-release
		})
		mu.Lock()
		defer mu.Unlock()
		last = items
	})
	defer remove()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.notes.Create(ctx, goal, model.Note{Content: "first"})
		assert.NoError(t, err)
	}()
	<-entered

	go func() {
		defer wg.Done()
		_, err := f.notes.Create(ctx, goal, model.Note{Content: "second"})
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	assert.Len(t, last, 2, "the last delivered list is the committed state")
	assert.Equal(t, f.notes.Items(goal), last)
	mu.Unlock()

	gate.Release()
	f.notes.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, f.notes.Items(goal), last)
}

func TestCollection_OnChangeRegistrationOrder(t *testing.T) {
	f := newNoteFixture(t, testsupport.User)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		remove := f.notes.OnChange(func(ids.ID, []model.Note) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		})
		defer remove()
	}

	m, err := f.notes.Create(context.Background(), ids.Persisted("g1"), model.Note{Content: "x"})
	require.NoError(t, err)
	_, err = waitMutation(t, m)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, order)
	require.Zero(t, len(order)%3)
	for i := 0; i < len(order); i += 3 {
		assert.Equal(t, []string{"a", "b", "c"}, order[i:i+3])
	}
}

func TestMutation_WaitHonorsContext(t *testing.T) {
	m := newMutation[model.Note](ids.NewTemporary())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Pending, m.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "reconciled", Reconciled.String())
	assert.Equal(t, "rolled_back", RolledBack.String())
}
