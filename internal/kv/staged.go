package kv

import (
	"context"
	"sort"
	"strings"
)

// stagedTx buffers writes over a base reader until commit. Backends without
// native transactions hold their own lock while the callback runs and apply
// the buffered operations afterwards.
type stagedTx struct {
	base    Reader
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newStagedTx(base Reader) *stagedTx {
	return &stagedTx{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (t *stagedTx) Get(ctx context.Context, key string) ([]byte, error) {
	if _, gone := t.deletes[key]; gone {
		return nil, ErrNotFound
	}
	if v, ok := t.writes[key]; ok {
		return cloneBytes(v), nil
	}
	return t.base.Get(ctx, key)
}

func (t *stagedTx) Keys(ctx context.Context, prefix string) ([]string, error) {
	baseKeys, err := t.base.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(baseKeys)+len(t.writes))
	keys := make([]string, 0, len(baseKeys)+len(t.writes))
	for _, k := range baseKeys {
		if _, gone := t.deletes[k]; gone {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range t.writes {
		if _, dup := seen[k]; dup || !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (t *stagedTx) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(t.deletes, key)
	t.writes[key] = cloneBytes(value)
	return nil
}

func (t *stagedTx) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(t.writes, key)
	t.deletes[key] = struct{}{}
	return nil
}

func (t *stagedTx) empty() bool {
	return len(t.writes) == 0 && len(t.deletes) == 0
}

// sortedWrites returns staged keys in a stable order for replay.
func (t *stagedTx) sortedWrites() []string {
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *stagedTx) sortedDeletes() []string {
	keys := make([]string, 0, len(t.deletes))
	for k := range t.deletes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
