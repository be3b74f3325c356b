package entries_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clarity-backend/internal/entries"
	"clarity-backend/internal/store"
)

// fakeStore wraps the in-process store with failure injection and list
// sequencing hooks.
type fakeStore struct {
	*store.Memory

	mu         sync.Mutex
	failInsert bool
	failUpdate bool
	failDelete bool
	failList   bool
	listCalls  int
	listGate   func(call int)

	gateStarted chan struct{}
	gateRelease chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{Memory: store.NewMemory()}
}

func (f *fakeStore) set(fn func(*fakeStore)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeStore) List(ctx context.Context, userID int) ([]entries.Entry, error) {
	f.mu.Lock()
	f.listCalls++
	call := f.listCalls
	fail := f.failList
	gate := f.listGate
	f.mu.Unlock()

	if fail {
		return nil, errors.New("list failed")
	}
	list, err := f.Memory.List(ctx, userID)
	if gate != nil {
		gate(call)
	}
	return list, err
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeStore) Insert(ctx context.Context, userID int, e entries.Entry) error {
	f.mu.Lock()
	fail := f.failInsert
	f.mu.Unlock()
	if fail {
		return errors.New("insert failed")
	}
	return f.Memory.Insert(ctx, userID, e)
}

func (f *fakeStore) Update(ctx context.Context, entryID string, userID int, fields entries.Fields) error {
	f.mu.Lock()
	fail := f.failUpdate
	f.mu.Unlock()
	if fail {
		return errors.New("update failed")
	}
	return f.Memory.Update(ctx, entryID, userID, fields)
}

func (f *fakeStore) Delete(ctx context.Context, entryID string, userID int) error {
	f.mu.Lock()
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return errors.New("delete failed")
	}
	return f.Memory.Delete(ctx, entryID, userID)
}

func seedEntry(id, text string, typ entries.EntryType) entries.Entry {
	return entries.Entry{
		ID:        id,
		Text:      text,
		Type:      typ,
		Priority:  entries.PriorityDefault,
		CreatedAt: time.Now().UTC(),
	}
}

func newEngine(t *testing.T, seed ...entries.Entry) (*entries.Engine, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	ctx := context.Background()
	for _, e := range seed {
		if err := st.Insert(ctx, 1, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	eng := entries.NewEngine(st, 1)
	if err := eng.Reload(ctx); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	return eng, st
}

// newFakeEngineWithGate seeds a loaded engine whose next reload blocks,
// after it has read its result, until gateRelease is closed.
func newFakeEngineWithGate(t *testing.T, seed ...entries.Entry) (*entries.Engine, *fakeStore) {
	t.Helper()
	eng, st := newEngine(t, seed...)
	st.gateStarted = make(chan struct{})
	st.gateRelease = make(chan struct{})
	st.set(func(f *fakeStore) {
		f.listGate = func(call int) {
			if call == 2 { // call 1 was the initial load
				close(f.gateStarted)
				<-f.gateRelease
			}
		}
	})
	return eng, st
}

func TestAddTaskConfirmed(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	if err := eng.AddTask(ctx, "write report"); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	snap := eng.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap))
	}
	if snap[0].Type != entries.TypeTask || snap[0].Priority != entries.PriorityDefault {
		t.Errorf("unexpected task: %+v", snap[0])
	}
	if op, st := eng.LastMutation(); st != entries.MutationConfirmed {
		t.Errorf("mutation %q ended in %s, want CONFIRMED", op, st)
	}
}

func TestAddTaskEmptyText(t *testing.T) {
	eng, _ := newEngine(t)
	err := eng.AddTask(context.Background(), "")
	if !errors.Is(err, entries.ErrInvalidMutation) {
		t.Fatalf("expected ErrInvalidMutation, got %v", err)
	}
}

func TestMutationRevertsOnWriteFailure(t *testing.T) {
	eng, st := newEngine(t, seedEntry("e1", "original", entries.TypeTask))
	ctx := context.Background()

	st.set(func(f *fakeStore) { f.failUpdate = true })

	err := eng.SetTitle(ctx, "e1", "renamed")
	var roe *entries.RemoteOperationError
	if !errors.As(err, &roe) {
		t.Fatalf("expected RemoteOperationError, got %v", err)
	}

	if _, state := eng.LastMutation(); state != entries.MutationReverted {
		t.Errorf("expected REVERTED, got %s", state)
	}
	if eng.LastError() == "" {
		t.Error("expected a user-visible error message")
	}

	// the reload that follows the failed write restores the remote truth
	got, ok := eng.Get("e1")
	if !ok || got.Text != "original" {
		t.Errorf("local state should match the store after revert, got %+v", got)
	}

	eng.ClearError()
	if eng.LastError() != "" {
		t.Error("ClearError should empty the slot")
	}
}

func TestErrorSlotHoldsOnlyLatest(t *testing.T) {
	eng, st := newEngine(t, seedEntry("e1", "x", entries.TypeTask))
	ctx := context.Background()

	st.set(func(f *fakeStore) { f.failUpdate = true })
	_ = eng.SetTitle(ctx, "e1", "a")
	first := eng.LastError()

	st.set(func(f *fakeStore) { f.failUpdate = false; f.failDelete = true })
	_ = eng.Delete(ctx, "e1")
	second := eng.LastError()

	if first == "" || second == "" || first == second {
		t.Errorf("second failure should replace the first: %q -> %q", first, second)
	}
}

func TestSetStartTimeNilClearsEndTime(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	e := seedEntry("e1", "standup", entries.TypeEvent)
	e.StartTime = &start
	e.EndTime = &end

	eng, _ := newEngine(t, e)
	ctx := context.Background()

	if err := eng.SetStartTime(ctx, "e1", nil); err != nil {
		t.Fatalf("SetStartTime(nil): %v", err)
	}
	got, _ := eng.Get("e1")
	if got.StartTime != nil || got.EndTime != nil {
		t.Errorf("clearing start must clear end too, got %+v", got)
	}
}

func TestSetEndTimeRequiresStart(t *testing.T) {
	eng, _ := newEngine(t, seedEntry("e1", "x", entries.TypeTask))
	end := time.Now().Add(time.Hour)
	err := eng.SetEndTime(context.Background(), "e1", &end)
	if !errors.Is(err, entries.ErrInvalidMutation) {
		t.Fatalf("expected ErrInvalidMutation, got %v", err)
	}
}

func TestToggleCompleteOnlyTasks(t *testing.T) {
	eng, _ := newEngine(t,
		seedEntry("t1", "task", entries.TypeTask),
		seedEntry("i1", "idea", entries.TypeIdea),
	)
	ctx := context.Background()

	if err := eng.ToggleComplete(ctx, "t1"); err != nil {
		t.Fatalf("ToggleComplete(task): %v", err)
	}
	if got, _ := eng.Get("t1"); !got.IsCompleted {
		t.Error("task should be completed")
	}
	if err := eng.ToggleComplete(ctx, "t1"); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if got, _ := eng.Get("t1"); got.IsCompleted {
		t.Error("second toggle should un-complete")
	}

	err := eng.ToggleComplete(ctx, "i1")
	if !errors.Is(err, entries.ErrInvalidMutation) {
		t.Fatalf("expected ErrInvalidMutation for idea, got %v", err)
	}
}

func TestDeleteUnknownEntry(t *testing.T) {
	eng, _ := newEngine(t)
	err := eng.Delete(context.Background(), "missing")
	if !errors.Is(err, entries.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReorderAssignsDenseSortOrder(t *testing.T) {
	a := seedEntry("a", "first", entries.TypeTask)
	b := seedEntry("b", "second", entries.TypeTask)
	c := seedEntry("c", "third", entries.TypeTask)
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	c.CreatedAt = a.CreatedAt.Add(2 * time.Second)

	eng, st := newEngine(t, a, b, c)
	ctx := context.Background()

	before := st.calls()
	snap := eng.Snapshot()
	reversed := []entries.Entry{snap[2], snap[1], snap[0]}
	if err := eng.Reorder(ctx, reversed); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	got := eng.Snapshot()
	wantIDs := []string{"c", "b", "a"}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
		if got[i].SortOrder == nil || *got[i].SortOrder != i {
			t.Errorf("position %d: want dense sort order %d, got %v", i, i, got[i].SortOrder)
		}
	}

	// optimistic: a confirmed reorder never reloads
	if st.calls() != before {
		t.Errorf("confirmed reorder should not reload (list calls %d -> %d)", before, st.calls())
	}
	if _, state := eng.LastMutation(); state != entries.MutationConfirmed {
		t.Errorf("expected CONFIRMED, got %s", state)
	}

	// reordering an already-reordered snapshot is a no-op on the order
	again := eng.Snapshot()
	if err := eng.Reorder(ctx, again); err != nil {
		t.Fatalf("idempotent reorder: %v", err)
	}
	final := eng.Snapshot()
	for i, id := range wantIDs {
		if final[i].ID != id || *final[i].SortOrder != i {
			t.Fatalf("reorder is not idempotent at position %d: %+v", i, final[i])
		}
	}
}

func TestReorderRevertsOnFailure(t *testing.T) {
	a := seedEntry("a", "first", entries.TypeTask)
	b := seedEntry("b", "second", entries.TypeTask)
	b.CreatedAt = a.CreatedAt.Add(time.Second)

	eng, st := newEngine(t, a, b)
	ctx := context.Background()

	st.set(func(f *fakeStore) { f.failUpdate = true })

	snap := eng.Snapshot()
	err := eng.Reorder(ctx, []entries.Entry{snap[1], snap[0]})
	var roe *entries.RemoteOperationError
	if !errors.As(err, &roe) {
		t.Fatalf("expected RemoteOperationError, got %v", err)
	}
	if _, state := eng.LastMutation(); state != entries.MutationReverted {
		t.Errorf("expected REVERTED, got %s", state)
	}
	if eng.LastError() == "" {
		t.Error("expected a user-visible error message")
	}

	// the reload discarded the optimistic order
	got := eng.Snapshot()
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected original order after revert, got %s,%s", got[0].ID, got[1].ID)
	}
}

func TestReloadFailureClearsCollection(t *testing.T) {
	eng, st := newEngine(t, seedEntry("e1", "x", entries.TypeTask))
	ctx := context.Background()

	st.set(func(f *fakeStore) { f.failList = true })
	if err := eng.Reload(ctx); err == nil {
		t.Fatal("expected reload error")
	}
	if len(eng.Snapshot()) != 0 {
		t.Error("failed reload should clear the collection")
	}
	if eng.LastError() == "" {
		t.Error("failed reload should set the error slot")
	}

	st.set(func(f *fakeStore) { f.failList = false })
	if err := eng.Reload(ctx); err != nil {
		t.Fatalf("recovery reload: %v", err)
	}
	if len(eng.Snapshot()) != 1 {
		t.Error("recovery reload should restore the collection")
	}
}

func TestStaleReloadIsDiscarded(t *testing.T) {
	eng, st := newFakeEngineWithGate(t, seedEntry("a", "first", entries.TypeTask))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- eng.Reload(ctx) }()
	<-st.gateStarted

	// a newer write + reload lands while the old reload is stuck
	if err := st.Insert(ctx, 1, seedEntry("b", "second", entries.TypeTask)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := eng.Reload(ctx); err != nil {
		t.Fatalf("newer reload: %v", err)
	}

	close(st.gateRelease)
	if err := <-done; err != nil {
		t.Fatalf("superseded reload should settle silently, got %v", err)
	}

	snap := eng.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("stale reload overwrote newer state: %d entries", len(snap))
	}
}

func TestReorderSupersedesInFlightReload(t *testing.T) {
	a := seedEntry("a", "first", entries.TypeTask)
	b := seedEntry("b", "second", entries.TypeTask)
	b.CreatedAt = a.CreatedAt.Add(time.Second)

	eng, st := newFakeEngineWithGate(t, a, b)
	ctx := context.Background()

	// a reload is stuck mid-flight with the pre-reorder order in hand
	done := make(chan error, 1)
	go func() { done <- eng.Reload(ctx) }()
	<-st.gateStarted

	snap := eng.Snapshot()
	if err := eng.Reorder(ctx, []entries.Entry{snap[1], snap[0]}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	close(st.gateRelease)
	if err := <-done; err != nil {
		t.Fatalf("superseded reload should settle silently, got %v", err)
	}

	// the confirmed optimistic order must survive the late reload
	got := eng.Snapshot()
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("stale reload overwrote the confirmed reorder: %s,%s", got[0].ID, got[1].ID)
	}
	if got[0].SortOrder == nil || *got[0].SortOrder != 0 || got[1].SortOrder == nil || *got[1].SortOrder != 1 {
		t.Errorf("sort orders lost: %v, %v", got[0].SortOrder, got[1].SortOrder)
	}
}

func TestLoadingFlagTracksReload(t *testing.T) {
	eng, st := newFakeEngineWithGate(t, seedEntry("a", "first", entries.TypeTask))
	ctx := context.Background()

	if eng.Loading() {
		t.Fatal("idle engine must not report loading")
	}

	done := make(chan error, 1)
	go func() { done <- eng.Reload(ctx) }()
	<-st.gateStarted

	if !eng.Loading() {
		t.Error("collection must read as stale while the reload is in flight")
	}

	close(st.gateRelease)
	if err := <-done; err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if eng.Loading() {
		t.Error("loading must clear once the reload settles")
	}
}

func TestManagerEnginePerUser(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()
	if err := st.Insert(ctx, 7, seedEntry("e1", "x", entries.TypeTask)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	mgr := entries.NewManager(st)
	eng := mgr.ForUser(ctx, 7)
	if len(eng.Snapshot()) != 1 {
		t.Error("first access should perform the initial load")
	}
	if mgr.ForUser(ctx, 7) != eng {
		t.Error("same user must get the same engine")
	}
	if mgr.ForUser(ctx, 8) == eng {
		t.Error("different users must not share engines")
	}

	mgr.Drop(7)
	if mgr.ForUser(ctx, 7) == eng {
		t.Error("Drop should forget the engine")
	}
}
