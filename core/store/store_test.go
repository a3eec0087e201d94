package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/relay-orchestration/relay-core/core/task"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	boltStore, err := NewBoltStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { boltStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   boltStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			state := task.New("review the Q3 invoice", "session-1")
			state.AppendHistory(task.ActorUser, "review the Q3 invoice")

			version, err := s.Save(ctx, state, 0)
			if err != nil {
				t.Fatalf("save new task: %v", err)
			}
			if version != 1 {
				t.Errorf("first save version = %d, want 1", version)
			}

			loaded, loadedVersion, err := s.Load(ctx, state.TaskID)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loadedVersion != version {
				t.Errorf("loaded version = %d, want %d", loadedVersion, version)
			}
			if loaded.TaskID != state.TaskID {
				t.Errorf("task_id = %q, want %q", loaded.TaskID, state.TaskID)
			}
			if loaded.Phase != task.PhasePlanning {
				t.Errorf("phase = %q, want %q", loaded.Phase, task.PhasePlanning)
			}
			if len(loaded.History) != 1 || loaded.History[0].Actor != task.ActorUser {
				t.Errorf("history not preserved: %+v", loaded.History)
			}
		})
	}
}

func TestStoreLoadUnknownTask(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.Load(ctx, "task_missing")
			if !task.IsNotFound(err) {
				t.Errorf("load unknown task error = %v, want NotFoundError", err)
			}
		})
	}
}

func TestStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			state := task.New("draft a report", "session-1")

			v1, err := s.Save(ctx, state, 0)
			if err != nil {
				t.Fatalf("save: %v", err)
			}

			// Stale writer lost the race: its expected version is behind.
			if _, err := s.Save(ctx, state, 0); !task.IsConcurrentModification(err) {
				t.Errorf("recreate error = %v, want ConcurrentModificationError", err)
			}

			v2, err := s.Save(ctx, state, v1)
			if err != nil {
				t.Fatalf("second save: %v", err)
			}
			if v2 != v1+1 {
				t.Errorf("second save version = %d, want %d", v2, v1+1)
			}

			if _, err := s.Save(ctx, state, v1); !task.IsConcurrentModification(err) {
				t.Errorf("stale save error = %v, want ConcurrentModificationError", err)
			}
		})
	}
}

func TestStoreCreateRequiresVersionZero(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			state := task.New("look up a record", "session-1")
			if _, err := s.Save(ctx, state, 7); !task.IsConcurrentModification(err) {
				t.Errorf("save with nonzero version on absent task = %v, want ConcurrentModificationError", err)
			}
		})
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			state := task.New("anything", "session-1")
			if _, err := s.Save(ctx, state, 0); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := s.Delete(ctx, state.TaskID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := s.Delete(ctx, state.TaskID); err != nil {
				t.Errorf("second delete: %v", err)
			}
			if _, _, err := s.Load(ctx, state.TaskID); !task.IsNotFound(err) {
				t.Errorf("load after delete = %v, want NotFoundError", err)
			}
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			a := task.New("first", "session-1")
			b := task.New("second", "session-2")
			for _, st := range []*task.State{a, b} {
				if _, err := s.Save(ctx, st, 0); err != nil {
					t.Fatalf("save: %v", err)
				}
			}
			ids, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(ids) != 2 {
				t.Errorf("list returned %d ids, want 2", len(ids))
			}
		})
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	state := task.New("mutate after save", "session-1")
	v, err := s.Save(ctx, state, 0)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	state.Description = "changed"
	state.AppendHistory(task.ActorUser, "extra")

	loaded, _, err := s.Load(ctx, state.TaskID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Description != "mutate after save" {
		t.Errorf("stored description mutated: %q", loaded.Description)
	}
	if len(loaded.History) != 0 {
		t.Errorf("stored history mutated: %+v", loaded.History)
	}

	// Mutating a loaded copy must not affect later loads.
	loaded.Description = "also changed"
	reloaded, _, err := s.Load(ctx, state.TaskID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Description != "mutate after save" {
		t.Errorf("loaded copy not isolated: %q", reloaded.Description)
	}
	_ = v
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")

	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	state := task.New("persist me", "session-1")
	v, err := s.Save(ctx, state, 0)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, loadedVersion, err := reopened.Load(ctx, state.TaskID)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if loadedVersion != v {
		t.Errorf("version after reopen = %d, want %d", loadedVersion, v)
	}
	if loaded.Description != "persist me" {
		t.Errorf("description after reopen = %q", loaded.Description)
	}
}
