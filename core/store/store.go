// Package store provides durable, versioned task state storage.
//
// Every engine mutation path reads the current version, computes the new
// state, and saves with the version it read. A losing writer gets a
// ConcurrentModificationError - this is the sole concurrency-control
// mechanism; there are no per-task locks.
package store

import (
	"context"

	"github.com/relay-orchestration/relay-core/core/task"
)

// Store is the persistence contract for task state.
//
// Load returns the state together with the version that must be passed back
// to Save. Save with expectedVersion 0 creates the record; Save with any
// other value succeeds only if the stored version still matches.
type Store interface {
	// Load returns the state and its current version.
	// Returns task.NotFoundError for unknown IDs.
	Load(ctx context.Context, taskID string) (*task.State, uint64, error)

	// Save persists the state if the stored version matches expectedVersion,
	// returning the new version. Returns task.ConcurrentModificationError on
	// mismatch; the caller must not retry silently.
	Save(ctx context.Context, state *task.State, expectedVersion uint64) (uint64, error)

	// Delete removes a task's state. Used by retention policies only;
	// deleting an unknown task is not an error.
	Delete(ctx context.Context, taskID string) error

	// List returns the IDs of all stored tasks, in no particular order.
	List(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}
