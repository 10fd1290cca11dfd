package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisScanCount = 200

// RedisStore keeps values as Redis strings under an optional key prefix.
// Update buffers writes and commits them in one MULTI/EXEC pipeline; reads
// inside the callback are not isolated from other clients.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.Mutex
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

type redisView struct{ s *RedisStore }

func (v redisView) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := v.s.client.Get(ctx, v.s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

func (v redisView) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(v.s.prefix+prefix) + "*"
	var keys []string
	iter := v.s.client.Scan(ctx, 0, match, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), v.s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	// SCAN may return a key more than once.
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// Get returns the value at key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	return redisView{s}.Get(ctx, key)
}

// Keys lists keys starting with prefix in lexical order.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	return redisView{s}.Keys(ctx, prefix)
}

// Set stores value at key without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Update runs fn over a buffered view and commits the writes atomically.
func (s *RedisStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newStagedTx(redisView{s})
	if err := fn(tx); err != nil {
		return err
	}
	if tx.empty() {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range tx.sortedDeletes() {
			pipe.Del(ctx, s.prefix+k)
		}
		for _, k := range tx.sortedWrites() {
			pipe.Set(ctx, s.prefix+k, tx.writes[k], 0)
		}
		return nil
	})
	return err
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis client not configured")
	}
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
