package storage_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CES-Eats-2026/cesfront/internal/storage"
)

// ---- mock Querier ----

type mockQuerier struct {
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.queryRowFn(ctx, sql, args...)
}
func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.execFn(ctx, sql, args...)
}

// ---- mock pgx.Row ----

type fakeRow struct {
	scanFn func(dest ...any) error
}

func (f *fakeRow) Scan(dest ...any) error { return f.scanFn(dest...) }

// ---- mock MigrationPool ----

type mockMigrationPool struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockMigrationPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.beginFn(ctx)
}

// mockTx is a minimal pgx.Tx implementation for testing migrations.
type mockTx struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(ctx, sql, args...)
}
func (t *mockTx) Commit(ctx context.Context) error   { return t.commitFn(ctx) }
func (t *mockTx) Rollback(ctx context.Context) error { return t.rollbackFn(ctx) }

// pgx.Tx has many more methods; stub them all out.
func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (t *mockTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

// ---- Get ----

func TestGet_Found(t *testing.T) {
	blob := []byte(`{"counts":{"a":3},"timestamp":1}`)
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, sql string, args ...any) pgx.Row {
			assert.Contains(t, sql, "FROM client_state")
			assert.Equal(t, "viewcount:snapshot:c1", args[0])
			return &fakeRow{scanFn: func(dest ...any) error {
				*dest[0].(*[]byte) = blob
				return nil
			}}
		},
	}

	got, err := storage.NewRepositoryWithQuerier(q).Get(context.Background(), "viewcount:snapshot:c1")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestGet_NotFound(t *testing.T) {
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	got, err := storage.NewRepositoryWithQuerier(q).Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGet_DBError(t *testing.T) {
	q := &mockQuerier{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error { return fmt.Errorf("connection reset") }}
		},
	}

	_, err := storage.NewRepositoryWithQuerier(q).Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

// ---- Set ----

func TestSet_Upserts(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	q := &mockQuerier{
		execFn: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}

	err := storage.NewRepositoryWithQuerier(q).Set(context.Background(), "k", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Contains(t, gotSQL, "ON CONFLICT (key) DO UPDATE")
	assert.Equal(t, "k", gotArgs[0])
	assert.Equal(t, []byte(`{"a":1}`), gotArgs[1])
}

func TestSet_InvalidJSON(t *testing.T) {
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			t.Fatal("exec should not be called for invalid JSON")
			return pgconn.CommandTag{}, nil
		},
	}

	err := storage.NewRepositoryWithQuerier(q).Set(context.Background(), "k", []byte(`{not json`))
	require.Error(t, err)
}

func TestSet_DBError(t *testing.T) {
	q := &mockQuerier{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("disk full")
		},
	}

	err := storage.NewRepositoryWithQuerier(q).Set(context.Background(), "k", []byte(`{}`))
	require.Error(t, err)
}

// ---- PruneOlderThan ----

func TestPruneOlderThan(t *testing.T) {
	q := &mockQuerier{
		execFn: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			assert.Contains(t, sql, "DELETE FROM client_state")
			cutoff := args[0].(time.Time)
			assert.WithinDuration(t, time.Now().Add(-48*time.Hour), cutoff, time.Minute)
			return pgconn.NewCommandTag("DELETE 3"), nil
		},
	}

	n, err := storage.NewRepositoryWithQuerier(q).PruneOlderThan(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// ---- migrations ----

func TestRunMigrations_OrderAndSkip(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql":  {Data: []byte("SELECT 2")},
		"001_a.sql":  {Data: []byte("SELECT 1")},
		"README.md":  {Data: []byte("ignored")},
		"sub/03.sql": {Data: []byte("SELECT 3")},
	}

	var executed []string
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) {
		return &mockTx{
			execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				executed = append(executed, sql)
				return pgconn.CommandTag{}, nil
			},
			commitFn:   func(_ context.Context) error { return nil },
			rollbackFn: func(_ context.Context) error { return nil },
		}, nil
	}}

	require.NoError(t, storage.RunMigrations(context.Background(), pool, fsys))
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, executed)
}

func TestRunMigrations_RollbackOnError(t *testing.T) {
	rolledBack := false
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) {
		return &mockTx{
			execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("syntax error")
			},
			commitFn: func(_ context.Context) error {
				t.Fatal("commit should not be called")
				return nil
			},
			rollbackFn: func(_ context.Context) error {
				rolledBack = true
				return nil
			},
		}, nil
	}}

	err := storage.RunMigrations(context.Background(), pool, fstest.MapFS{"001.sql": {Data: []byte("BAD")}})
	require.Error(t, err)
	assert.True(t, rolledBack)
}

func TestMigrate_EmbeddedClientStateTable(t *testing.T) {
	var executed []string
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) {
		return &mockTx{
			execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				executed = append(executed, sql)
				return pgconn.CommandTag{}, nil
			},
			commitFn:   func(_ context.Context) error { return nil },
			rollbackFn: func(_ context.Context) error { return nil },
		}, nil
	}}

	require.NoError(t, storage.Migrate(context.Background(), pool))
	require.NotEmpty(t, executed)
	assert.True(t, strings.Contains(executed[0], "CREATE TABLE IF NOT EXISTS client_state"))
}
