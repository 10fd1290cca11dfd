package kv

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucket = "kv"

// BoltStore provides a BoltDB-backed store. Update maps onto one bbolt
// read-write transaction.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens a BoltDB file at the provided path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

type boltTx struct {
	bucket *bbolt.Bucket
}

func (t boltTx) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val := t.bucket.Get([]byte(key))
	if val == nil {
		return nil, ErrNotFound
	}
	// bbolt memory is only valid for the life of the transaction.
	return cloneBytes(val), nil
}

func (t boltTx) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	p := []byte(prefix)
	c := t.bucket.Cursor()
	for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
		keys = append(keys, string(k))
	}
	return keys, nil
}

func (t boltTx) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	return t.bucket.Put([]byte(key), value)
}

func (t boltTx) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.bucket.Delete([]byte(key))
}

// Get returns the value at key.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.view(ctx, func(tx boltTx) error {
		var err error
		out, err = tx.Get(ctx, key)
		return err
	})
	return out, err
}

// Keys lists keys starting with prefix in lexical order.
func (s *BoltStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.view(ctx, func(tx boltTx) error {
		var err error
		out, err = tx.Keys(ctx, prefix)
		return err
	})
	return out, err
}

// Set stores value at key.
func (s *BoltStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Set(ctx, key, value) })
}

// Delete removes key.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Delete(ctx, key) })
}

// Update runs fn inside a bbolt read-write transaction.
func (s *BoltStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", boltBucket)
		}
		return fn(boltTx{bucket: bucket})
	})
}

// Ping opens a read transaction.
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.view(ctx, func(boltTx) error { return nil })
}

// Close closes the underlying BoltDB database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) view(ctx context.Context, fn func(boltTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", boltBucket)
		}
		return fn(boltTx{bucket: bucket})
	})
}
