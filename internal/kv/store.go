// Package kv is the key-value substrate behind the profile and notification
// stores. Values are opaque bytes (JSON text in practice) addressed by string
// keys, mirroring the browser storage the data model was designed around.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates the key holds no value.
	ErrNotFound = errors.New("key not found")
	// ErrMalformed indicates a stored value could not be decoded.
	ErrMalformed = errors.New("malformed value")
	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")
)

// Reader reads keys.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Writer mutates keys.
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Tx is the view handed to Update callbacks.
type Tx interface {
	Reader
	Writer
}

// Store is a key-value backend. Writes made through Update are applied
// together or not at all.
type Store interface {
	Tx
	Update(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value at key into dst. It returns ErrNotFound when the
// key is absent and an ErrMalformed wrap when the value is not valid JSON for dst.
func GetJSON(ctx context.Context, r Reader, key string, dst any) error {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, w Writer, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return w.Set(ctx, key, raw)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func filterKeys[V any](m map[string]V, prefix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
