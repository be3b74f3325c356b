package entries

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MutationState is the lifecycle of one optimistic mutation.
type MutationState string

const (
	MutationApplying  MutationState = "APPLYING"
	MutationConfirmed MutationState = "CONFIRMED"
	MutationReverted  MutationState = "REVERTED"
)

// ErrInvalidMutation marks a mutation rejected locally before any remote
// write was attempted.
var ErrInvalidMutation = errors.New("invalid mutation")

// RemoteOperationError wraps a failed remote write (or the reload that
// follows it). The engine has already forced itself back to a consistent
// state by the time this is returned.
type RemoteOperationError struct {
	Op  string
	Err error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

// Engine mirrors the remote store's per-user partition in memory and is the
// only writer to it for the active session.
//
// Every non-reorder mutation is a remote write followed by a full reload:
// local state is always rebuilt from the source of truth, never patched.
// Reorder is the one exception: it applies locally first and only reconciles
// (by reload) when a remote position update fails.
type Engine struct {
	store  Store
	userID int

	mu      sync.Mutex
	entries []Entry
	loading bool
	lastErr string

	// generation detects stale reloads: a reload that started before a
	// newer one settles is discarded instead of overwriting newer state.
	generation uint64

	lastOp      string
	lastOpState MutationState
}

func NewEngine(st Store, userID int) *Engine {
	return &Engine{store: st, userID: userID}
}

func (e *Engine) UserID() int { return e.userID }

// Snapshot returns a copy of the collection in canonical order.
func (e *Engine) Snapshot() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

// Loading reports whether a reload is in flight (the collection is stale).
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// LastError returns the single user-visible error slot. A later error
// replaces an earlier one; there is no queue.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) ClearError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = ""
}

// LastMutation reports the most recent mutation and where its state machine
// ended up.
func (e *Engine) LastMutation() (string, MutationState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOp, e.lastOpState
}

func (e *Engine) Get(id string) (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, en := range e.entries {
		if en.ID == id {
			return en, true
		}
	}
	return Entry{}, false
}

// Reload rebuilds the collection from the remote store. Reloads are not
// cancellable; instead each one carries a generation and only the newest is
// allowed to land.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.loading = true
	e.mu.Unlock()

	list, err := e.store.List(ctx, e.userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		// superseded by a newer reload; that one owns the outcome
		return nil
	}
	e.loading = false
	if err != nil {
		e.lastErr = "failed to load entries: " + err.Error()
		e.entries = nil
		return err
	}
	SortCollection(list)
	e.entries = list
	return nil
}

// apply runs one non-reorder mutation through its state machine:
// APPLYING -> CONFIRMED | REVERTED. The reload happens on both paths, so
// after settle the local collection matches the remote store (possibly the
// last known-good state).
func (e *Engine) apply(ctx context.Context, op string, write func(context.Context) error) error {
	e.setMutation(op, MutationApplying)

	writeErr := write(ctx)
	reloadErr := e.Reload(ctx)

	if writeErr != nil {
		e.setMutation(op, MutationReverted)
		e.setError(op, writeErr)
		return &RemoteOperationError{Op: op, Err: writeErr}
	}
	if reloadErr != nil {
		e.setMutation(op, MutationReverted)
		return &RemoteOperationError{Op: op, Err: reloadErr}
	}
	e.setMutation(op, MutationConfirmed)
	return nil
}

func (e *Engine) setMutation(op string, st MutationState) {
	e.mu.Lock()
	e.lastOp = op
	e.lastOpState = st
	e.mu.Unlock()
}

func (e *Engine) setError(op string, err error) {
	e.mu.Lock()
	e.lastErr = fmt.Sprintf("failed to %s: %v", op, err)
	e.mu.Unlock()
}

// Ingest persists already-validated entries produced by the ingestion
// pipeline, then rebuilds the collection.
func (e *Engine) Ingest(ctx context.Context, list []Entry) error {
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMutation, err)
		}
	}
	return e.apply(ctx, "ingest entries", func(ctx context.Context) error {
		for _, en := range list {
			if err := e.store.Insert(ctx, e.userID, en); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddTask creates a single task entry directly, without the classifier.
func (e *Engine) AddTask(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("%w: task text is empty", ErrInvalidMutation)
	}
	en := Entry{
		ID:        uuid.NewString(),
		Text:      text,
		Type:      TypeTask,
		Priority:  PriorityDefault,
		CreatedAt: time.Now().UTC(),
	}
	return e.apply(ctx, "add task", func(ctx context.Context) error {
		return e.store.Insert(ctx, e.userID, en)
	})
}

func (e *Engine) SetCategory(ctx context.Context, id string, t EntryType) error {
	if !ValidType(t) {
		return fmt.Errorf("%w: invalid type %q", ErrInvalidMutation, t)
	}
	if _, ok := e.Get(id); !ok {
		return ErrNotFound
	}
	return e.apply(ctx, "update category", func(ctx context.Context) error {
		return e.store.Update(ctx, id, e.userID, Fields{FieldType: string(t)})
	})
}

func (e *Engine) SetNote(ctx context.Context, id, note string) error {
	if _, ok := e.Get(id); !ok {
		return ErrNotFound
	}
	return e.apply(ctx, "update note", func(ctx context.Context) error {
		return e.store.Update(ctx, id, e.userID, Fields{FieldNote: note})
	})
}

func (e *Engine) SetTitle(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidMutation)
	}
	if _, ok := e.Get(id); !ok {
		return ErrNotFound
	}
	return e.apply(ctx, "update title", func(ctx context.Context) error {
		return e.store.Update(ctx, id, e.userID, Fields{FieldText: title})
	})
}

// SetStartTime updates the start time. Clearing it also clears the end
// time, so the "end without start" state can never be written.
func (e *Engine) SetStartTime(ctx context.Context, id string, ts *time.Time) error {
	cur, ok := e.Get(id)
	if !ok {
		return ErrNotFound
	}
	fields := Fields{FieldStartTime: tsValue(ts)}
	if ts == nil {
		fields[FieldEndTime] = nil
	} else if cur.EndTime != nil && !cur.EndTime.After(*ts) {
		return fmt.Errorf("%w: start time is not before end time", ErrInvalidMutation)
	}
	return e.apply(ctx, "update start time", func(ctx context.Context) error {
		return e.store.Update(ctx, id, e.userID, fields)
	})
}

func (e *Engine) SetEndTime(ctx context.Context, id string, ts *time.Time) error {
	cur, ok := e.Get(id)
	if !ok {
		return ErrNotFound
	}
	if ts != nil {
		if cur.StartTime == nil {
			return fmt.Errorf("%w: end time without start time", ErrInvalidMutation)
		}
		if !ts.After(*cur.StartTime) {
			return fmt.Errorf("%w: end time is not after start time", ErrInvalidMutation)
		}
	}
	return e.apply(ctx, "update end time", func(ctx context.Context) error {
		return e.store.Update(ctx, id, e.userID, Fields{FieldEndTime: tsValue(ts)})
	})
}

// ToggleComplete flips completion. Completion is only meaningful for tasks.
func (e *Engine) ToggleComplete(ctx context.Context, id string) error {
	cur, ok := e.Get(id)
	if !ok {
		return ErrNotFound
	}
	if cur.Type != TypeTask {
		return fmt.Errorf("%w: completion only applies to tasks", ErrInvalidMutation)
	}
	return e.apply(ctx, "toggle complete", func(ctx context.Context) error {
		return e.store.Update(ctx, id, e.userID, Fields{FieldIsCompleted: !cur.IsCompleted})
	})
}

// Delete removes an entry. Terminal: the engine keeps no tombstone.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if _, ok := e.Get(id); !ok {
		return ErrNotFound
	}
	return e.apply(ctx, "delete entry", func(ctx context.Context) error {
		return e.store.Delete(ctx, id, e.userID)
	})
}

// Reorder applies a new full ordering. Local state changes immediately (no
// round trip); each entry then gets one concurrent remote position update.
// Any failure discards the optimistic order via a full reload. On success
// nothing is reloaded: the optimistic state is trusted.
func (e *Engine) Reorder(ctx context.Context, ordered []Entry) error {
	const op = "reorder entries"
	e.setMutation(op, MutationApplying)

	local := make([]Entry, len(ordered))
	copy(local, ordered)
	for i := range local {
		idx := i
		local[i].SortOrder = &idx
	}

	e.mu.Lock()
	// the optimistic order supersedes any reload still in flight
	e.generation++
	e.entries = local
	e.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(local))
	for _, en := range local {
		wg.Add(1)
		go func(en Entry) {
			defer wg.Done()
			err := e.store.Update(ctx, en.ID, e.userID, Fields{FieldSortOrder: *en.SortOrder})
			if err != nil {
				errCh <- err
			}
		}(en)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		e.setMutation(op, MutationReverted)
		e.setError(op, err)
		_ = e.Reload(ctx) // revert to the last confirmed order
		return &RemoteOperationError{Op: op, Err: err}
	}
	e.setMutation(op, MutationConfirmed)
	return nil
}

func tsValue(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return *ts
}
