package store

import (
	"context"
	"sync"

	"github.com/relay-orchestration/relay-core/core/task"
)

// versionedState pairs a state snapshot with its version counter.
type versionedState struct {
	state   *task.State
	version uint64
}

// MemoryStore is an in-memory Store for tests and single-process deployments
// that can tolerate losing suspended tasks on restart.
//
// States are deep-copied on both Load and Save so callers can never mutate
// the stored snapshot in place.
type MemoryStore struct {
	tasks map[string]*versionedState
	mu    sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*versionedState),
	}
}

// Load returns a deep copy of the state and its version.
func (m *MemoryStore) Load(ctx context.Context, taskID string) (*task.State, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vs, ok := m.tasks[taskID]
	if !ok {
		return nil, 0, task.NewNotFoundError(taskID)
	}
	return vs.state.Clone(), vs.version, nil
}

// Save persists a deep copy of the state under optimistic version check.
func (m *MemoryStore) Save(ctx context.Context, state *task.State, expectedVersion uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tasks[state.TaskID]
	switch {
	case !ok && expectedVersion != 0:
		return 0, task.NewConcurrentModificationError(state.TaskID, expectedVersion, 0)
	case ok && existing.version != expectedVersion:
		return 0, task.NewConcurrentModificationError(state.TaskID, expectedVersion, existing.version)
	}

	next := expectedVersion + 1
	m.tasks[state.TaskID] = &versionedState{
		state:   state.Clone(),
		version: next,
	}
	return next, nil
}

// Delete removes a task's state.
func (m *MemoryStore) Delete(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

// List returns all stored task IDs.
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
