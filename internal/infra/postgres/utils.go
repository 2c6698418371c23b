package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/resilience/internal/conn"
	"github.com/vietddude/resilience/internal/retry"
)

// DBUtils is the resource-idiomatic database facade. Every operation runs
// through the connection manager's database retry policy.
type DBUtils struct {
	db *DB
	cm *conn.Manager
}

// NewDBUtils builds the facade around an established connection.
func NewDBUtils(db *DB, cm *conn.Manager) *DBUtils {
	return &DBUtils{db: db, cm: cm}
}

// Select runs a multi-row query into dest, retried as one unit.
func (u *DBUtils) Select(ctx context.Context, name string, dest any, query string, args ...any) error {
	_, err := u.cm.ExecuteDB(ctx, u.db, name, func(ctx context.Context) (any, error) {
		return nil, u.db.SelectContext(ctx, dest, query, args...)
	})
	return err
}

// Get runs a single-row query into dest, retried as one unit.
func (u *DBUtils) Get(ctx context.Context, name string, dest any, query string, args ...any) error {
	_, err := u.cm.ExecuteDB(ctx, u.db, name, func(ctx context.Context) (any, error) {
		return nil, u.db.GetContext(ctx, dest, query, args...)
	})
	return err
}

// Exec runs a statement, retried as one unit.
func (u *DBUtils) Exec(ctx context.Context, name string, query string, args ...any) (sql.Result, error) {
	result, err := u.cm.ExecuteDB(ctx, u.db, name, func(ctx context.Context) (any, error) {
		return u.db.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

// ExecuteTransaction runs fn inside a transaction. The whole body is one
// retried unit: a failure at any step rolls back and the next attempt starts
// a fresh transaction, never a partial replay.
func (u *DBUtils) ExecuteTransaction(ctx context.Context, name string, fn func(tx *sqlx.Tx) error) error {
	_, err := u.cm.ExecuteDB(ctx, u.db, name, func(ctx context.Context) (any, error) {
		tx, err := u.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				slog.Warn("transaction rollback failed", "operation", name, "error", rbErr)
			}
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, nil
	})
	return err
}

// ParallelQuery is one unit of work for ExecuteParallelQueries.
type ParallelQuery struct {
	Name string
	Op   retry.Operation
}

// QueryResult is the outcome of one parallel query.
type QueryResult struct {
	Name  string
	Value any
	Err   error
}

// ExecuteParallelQueries fans out the queries concurrently, each under its
// own retry budget, and waits for all of them. One query's failure does not
// cancel the others; callers inspect per-query results.
func (u *DBUtils) ExecuteParallelQueries(ctx context.Context, queries []ParallelQuery) []QueryResult {
	results := make([]QueryResult, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q ParallelQuery) {
			defer wg.Done()
			value, err := u.cm.ExecuteDB(ctx, u.db, q.Name, q.Op)
			results[i] = QueryResult{Name: q.Name, Value: value, Err: err}
		}(i, q)
	}
	wg.Wait()

	return results
}

// IsHealthy probes the connection; errors become false.
func (u *DBUtils) IsHealthy(ctx context.Context) bool {
	return u.cm.CheckDatabaseHealth(ctx, u.db)
}

// Handle exposes the underlying connection wrapper.
func (u *DBUtils) Handle() *DB {
	return u.db
}
