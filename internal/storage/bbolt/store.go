// Package bbolt provides the BoltDB-backed persistent store. Each
// storage.Collection maps to one bucket; values are opaque bytes owned by the
// caller.
package bbolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/harborlight/relief-offline/internal/storage"
)

// Store is a durable named-collection key-value store.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens (or creates) the store at the provided path. It is idempotent:
// the database file and all collections are created on first use and left
// untouched afterwards. Failures to create or lock the file are reported as
// storage.ErrUnavailable.
func Open(path string) (*Store, error) {
	return open(path, false)
}

// OpenReadOnly opens an existing store without taking the write lock. Used by
// inspection tooling; all mutating operations fail.
func OpenReadOnly(path string) (*Store, error) {
	return open(path, true)
}

func open(path string, readOnly bool) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: storage path is required", storage.ErrUnavailable)
	}

	cleanPath := filepath.Clean(path)
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", storage.ErrUnavailable, err)
		}
	}

	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", storage.ErrUnavailable, cleanPath, err)
	}

	store := &Store{db: db, path: cleanPath}
	if !readOnly {
		if err := store.ensureBuckets(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Size returns the database file size in bytes.
func (s *Store) Size() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("stat store file: %w", err)
	}
	return info.Size(), nil
}

// CheckReadiness runs an empty read transaction to verify the store is
// usable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(*bbolt.Tx) error { return nil })
}

// Put upserts a single record. Writes are atomic per record; an existing key
// is silently overwritten.
func (s *Store) Put(ctx context.Context, collection storage.Collection, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("put %s: key is required", collection)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := collectionBucket(tx, collection)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
}

// Get fetches one record. A missing key yields storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection storage.Collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := collectionBucket(tx, collection)
		if err != nil {
			return err
		}
		payload := bucket.Get([]byte(key))
		if payload == nil {
			return storage.ErrNotFound
		}
		// The slice is only valid inside the transaction.
		value = append([]byte(nil), payload...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// GetAll returns every value in a collection in key order. An empty
// collection yields an empty slice, not an error.
func (s *Store) GetAll(ctx context.Context, collection storage.Collection) ([][]byte, error) {
	items, err := s.Items(ctx, collection)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, len(items))
	for i := range items {
		values[i] = items[i].Value
	}
	return values, nil
}

// Items returns every key-value pair in a collection in key order.
func (s *Store) Items(ctx context.Context, collection storage.Collection) ([]storage.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []storage.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := collectionBucket(tx, collection)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			items = append(items, storage.Item{
				Key:   string(k),
				Value: append([]byte(nil), v...),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes one record. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, collection storage.Collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := collectionBucket(tx, collection)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(key))
	})
}

// NextID returns the next value of the collection's auto-increment sequence.
// IDs are monotonically increasing and never reused, even across restarts.
func (s *Store) NextID(ctx context.Context, collection storage.Collection) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := collectionBucket(tx, collection)
		if err != nil {
			return err
		}
		id, err = bucket.NextSequence()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", collection, err)
	}
	return id, nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, collection storage.Collection) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := collectionBucket(tx, collection)
		if err != nil {
			return err
		}
		n = bucket.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, c := range storage.Collections() {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return fmt.Errorf("create %s bucket: %w", c, err)
			}
		}
		return nil
	})
}

func collectionBucket(tx *bbolt.Tx, collection storage.Collection) (*bbolt.Bucket, error) {
	bucket := tx.Bucket([]byte(collection))
	if bucket == nil {
		return nil, fmt.Errorf("%s bucket is missing", collection)
	}
	return bucket, nil
}
