package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository is the durable home of client-state blobs keyed by name.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// Get returns the JSON blob stored under key.
// Returns nil, nil when the key is not found.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value FROM client_state WHERE key = $1`

	var value []byte
	if err := r.q.QueryRow(ctx, q, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying client state %s: %w", key, err)
	}

	return value, nil
}

// Set upserts the blob under key. The value must be valid JSON.
func (r *Repository) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("client state %s is not valid JSON", key)
	}

	const q = `
		INSERT INTO client_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value      = EXCLUDED.value,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := r.q.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("upserting client state %s: %w", key, err)
	}

	return nil
}

// PruneOlderThan deletes blobs not written within maxAge and returns how many
// were removed.
func (r *Repository) PruneOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	const q = `DELETE FROM client_state WHERE updated_at < $1`

	tag, err := r.q.Exec(ctx, q, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("pruning client state: %w", err)
	}

	return tag.RowsAffected(), nil
}
