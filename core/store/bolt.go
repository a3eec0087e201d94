package store

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/relay-orchestration/relay-core/core/task"
)

var tasksBucket = []byte("tasks")

// boltRecord is the on-disk envelope for a task state.
type boltRecord struct {
	Version uint64      `json:"version"`
	State   *task.State `json:"state"`
}

// BoltStore is a durable Store backed by a bbolt database. Version checks
// run inside a single update transaction, so concurrent writers observe
// the same compare-and-swap semantics as the in-memory backend.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open task database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tasksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tasks bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load returns the state and version for taskID.
func (b *BoltStore) Load(ctx context.Context, taskID string) (*task.State, uint64, error) {
	var rec boltRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(tasksBucket).Get([]byte(taskID))
		if raw == nil {
			return task.NewNotFoundError(taskID)
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, 0, err
	}
	return rec.State, rec.Version, nil
}

// Save persists state under optimistic version check.
func (b *BoltStore) Save(ctx context.Context, state *task.State, expectedVersion uint64) (uint64, error) {
	var next uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(tasksBucket)
		key := []byte(state.TaskID)

		raw := bucket.Get(key)
		switch {
		case raw == nil && expectedVersion != 0:
			return task.NewConcurrentModificationError(state.TaskID, expectedVersion, 0)
		case raw != nil:
			var existing boltRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("decode stored task %s: %w", state.TaskID, err)
			}
			if existing.Version != expectedVersion {
				return task.NewConcurrentModificationError(state.TaskID, expectedVersion, existing.Version)
			}
		}

		next = expectedVersion + 1
		encoded, err := json.Marshal(boltRecord{Version: next, State: state})
		if err != nil {
			return fmt.Errorf("encode task %s: %w", state.TaskID, err)
		}
		return bucket.Put(key, encoded)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Delete removes a task's record. Deleting an absent task is not an error.
func (b *BoltStore) Delete(ctx context.Context, taskID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tasksBucket).Delete([]byte(taskID))
	})
}

// List returns all stored task IDs.
func (b *BoltStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tasksBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close closes the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

var _ Store = (*BoltStore)(nil)
