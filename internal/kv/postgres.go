package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps values in the kv_entries table created by the
// persistence migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	q pgQuerier
}

func (t pgTx) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM kv_entries WHERE key=$1`

	var value []byte
	if err := t.q.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (t pgTx) Keys(ctx context.Context, prefix string) ([]string, error) {
	const query = `SELECT key FROM kv_entries WHERE starts_with(key, $1) ORDER BY key`

	rows, err := t.q.Query(ctx, query, prefix)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t pgTx) Set(ctx context.Context, key string, value []byte) error {
	const query = `
        INSERT INTO kv_entries (key, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`

	if value == nil {
		value = []byte{}
	}
	_, err := t.q.Exec(ctx, query, key, value)
	return err
}

func (t pgTx) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM kv_entries WHERE key=$1`

	_, err := t.q.Exec(ctx, query, key)
	return err
}

func (s *PostgresStore) direct() (pgTx, error) {
	if s == nil || s.pool == nil {
		return pgTx{}, fmt.Errorf("postgres pool not configured")
	}
	return pgTx{q: s.pool}, nil
}

// Get returns the value at key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	tx, err := s.direct()
	if err != nil {
		return nil, err
	}
	return tx.Get(ctx, key)
}

// Keys lists keys starting with prefix in lexical order.
func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	tx, err := s.direct()
	if err != nil {
		return nil, err
	}
	return tx.Keys(ctx, prefix)
}

// Set upserts value at key.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	tx, err := s.direct()
	if err != nil {
		return err
	}
	return tx.Set(ctx, key, value)
}

// Delete removes key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tx, err := s.direct()
	if err != nil {
		return err
	}
	return tx.Delete(ctx, key)
}

// serializationAttempts bounds how often a transaction that lost a
// serialization conflict is run again.
const serializationAttempts = 5

// Update runs fn inside one serializable SQL transaction. fn is run again
// when the transaction aborts with a serialization failure or deadlock, so it
// must derive everything it writes from tx.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return retrySerializable(ctx, serializationAttempts, func() error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(pgTx{q: tx})
		})
	})
}

func retrySerializable(ctx context.Context, attempts int, run func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * 5 * time.Millisecond):
			}
		}
		err = run()
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

// isSerializationFailure reports SQLSTATE 40001 and 40P01.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}
