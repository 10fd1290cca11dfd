package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// FileStore persists every key in one JSON document shaped like a browser
// storage dump: an object of string keys to string values. A sidecar lock
// file serializes access across processes sharing the document.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// OpenFileStore opens (or lazily creates) the document at path.
func OpenFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{
		path: cleanPath,
		lock: flock.New(cleanPath + ".lock"),
	}, nil
}

type fileView map[string]string

func (v fileView) Get(_ context.Context, key string) ([]byte, error) {
	val, ok := v[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(val), nil
}

func (v fileView) Keys(_ context.Context, prefix string) ([]string, error) {
	return filterKeys(v, prefix), nil
}

// Get returns the value at key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.read(ctx, func(v fileView) error {
		var err error
		out, err = v.Get(ctx, key)
		return err
	})
	return out, err
}

// Keys lists keys starting with prefix in lexical order.
func (s *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.read(ctx, func(v fileView) error {
		out, _ = v.Keys(ctx, prefix)
		return nil
	})
	return out, err
}

// Set stores value at key.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Set(ctx, key, value) })
}

// Delete removes key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Delete(ctx, key) })
}

// Update loads the document under an exclusive lock, runs fn and rewrites
// the document once when fn succeeds.
func (s *FileStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock storage file: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	doc, err := s.load()
	if err != nil {
		return err
	}
	tx := newStagedTx(doc)
	if err := fn(tx); err != nil {
		return err
	}
	if tx.empty() {
		return nil
	}
	for _, k := range tx.sortedDeletes() {
		delete(doc, k)
	}
	for _, k := range tx.sortedWrites() {
		doc[k] = string(tx.writes[k])
	}
	return s.save(doc)
}

// Ping verifies the document is readable.
func (s *FileStore) Ping(ctx context.Context) error {
	return s.read(ctx, func(fileView) error { return nil })
}

// Close releases the lock handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Close()
}

func (s *FileStore) read(ctx context.Context, fn func(fileView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("lock storage file: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

func (s *FileStore) load() (fileView, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileView{}, nil
		}
		return nil, fmt.Errorf("reading storage file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fileView{}, nil
	}
	doc := fileView{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing storage file: %w", err)
	}
	return doc, nil
}

func (s *FileStore) save(doc fileView) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding storage file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing storage file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing storage file: %w", err)
	}
	return nil
}
