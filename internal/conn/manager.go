// Package conn manages connection establishment and connection-bound
// operation execution for the backing stores, layered on the retry engine.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/resilience/internal/retry"
)

// Pinger is the minimal surface a connection handle must expose for health
// probes and post-failure repair. Both the Postgres and Redis wrappers
// satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

var connectionPatterns = []string{
	"connection terminated",
	"connection lost",
	"connection reset",
	"connection refused",
	"socket closed",
	"broken pipe",
	"unexpected eof",
}

// Manager owns one long-lived retry policy per backing-resource type and a
// general-purpose default for ad hoc operations. Construct one per process
// and pass it to whatever needs resilient store access; there is no package
// singleton.
type Manager struct {
	dbRetry      *retry.Manager
	cacheRetry   *retry.Manager
	defaultRetry *retry.Manager
	log          *slog.Logger
}

// NewManager builds a connection manager with the database and cache presets.
// Extra options apply to all three policies, letting deployments tighten or
// loosen the whole manager at once.
func NewManager(log *slog.Logger, opts ...retry.Option) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}

	dbRetry, err := retry.ForDatabase(opts...)
	if err != nil {
		return nil, fmt.Errorf("database retry policy: %w", err)
	}
	cacheRetry, err := retry.ForCache(opts...)
	if err != nil {
		return nil, fmt.Errorf("cache retry policy: %w", err)
	}
	defaultRetry, err := retry.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("default retry policy: %w", err)
	}

	return &Manager{
		dbRetry:      dbRetry,
		cacheRetry:   cacheRetry,
		defaultRetry: defaultRetry,
		log:          log,
	}, nil
}

// ConnectDatabase establishes a database connection through the database
// preset. The factory must establish and smoke-test the connection (a ping
// or trivial round-trip) before returning it.
func ConnectDatabase[T any](
	ctx context.Context,
	m *Manager,
	connect func(ctx context.Context) (T, error),
) (T, error) {
	return retry.Do(ctx, m.dbRetry, "database connect", connect)
}

// ConnectCache establishes a cache connection through the cache preset.
func ConnectCache[T any](
	ctx context.Context,
	m *Manager,
	connect func(ctx context.Context) (T, error),
) (T, error) {
	return retry.Do(ctx, m.cacheRetry, "cache connect", connect)
}

// ExecuteDB runs an operation against an already-open database connection
// under the database preset. When an attempt fails with a connection-shaped
// error, the handle is pinged before the error re-enters the retry loop so a
// later attempt on the same handle has a chance to succeed without a full
// reconnect.
func (m *Manager) ExecuteDB(
	ctx context.Context,
	handle Pinger,
	name string,
	op retry.Operation,
) (any, error) {
	return m.dbRetry.Execute(ctx, name, m.withRepair(handle, name, op))
}

// ExecuteRedis is ExecuteDB for the cache store.
func (m *Manager) ExecuteRedis(
	ctx context.Context,
	handle Pinger,
	name string,
	op retry.Operation,
) (any, error) {
	return m.cacheRetry.Execute(ctx, name, m.withRepair(handle, name, op))
}

func (m *Manager) withRepair(handle Pinger, name string, op retry.Operation) retry.Operation {
	return func(ctx context.Context) (any, error) {
		result, err := op(ctx)
		if err != nil && handle != nil && isConnectionError(err) {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if pingErr := handle.Ping(pingCtx); pingErr != nil {
				m.log.Warn("connection repair ping failed",
					"operation", name, "error", pingErr)
			} else {
				m.log.Debug("connection repaired after failure", "operation", name)
			}
		}
		return result, err
	}
}

// CheckDatabaseHealth probes the database handle through the retry machinery.
// Errors become false; a health check never propagates a failure.
func (m *Manager) CheckDatabaseHealth(ctx context.Context, handle Pinger) bool {
	return m.checkHealth(ctx, m.dbRetry, "database health check", handle)
}

// CheckRedisHealth probes the cache handle. Same contract as
// CheckDatabaseHealth.
func (m *Manager) CheckRedisHealth(ctx context.Context, handle Pinger) bool {
	return m.checkHealth(ctx, m.cacheRetry, "cache health check", handle)
}

func (m *Manager) checkHealth(
	ctx context.Context,
	r *retry.Manager,
	name string,
	handle Pinger,
) bool {
	if handle == nil {
		return false
	}
	_, err := r.Execute(ctx, name, func(ctx context.Context) (any, error) {
		return nil, handle.Ping(ctx)
	})
	if err != nil {
		m.log.Warn("health check failed", "operation", name, "error", err)
		return false
	}
	return true
}

// ExecuteWithCustomRetry runs an operation under a one-off policy, for
// callers that need bespoke behavior without a preset.
func (m *Manager) ExecuteWithCustomRetry(
	ctx context.Context,
	name string,
	op retry.Operation,
	opts ...retry.Option,
) (any, error) {
	r, err := retry.New(opts...)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, name, op)
}

// Execute runs an operation under the general-purpose default policy.
func (m *Manager) Execute(ctx context.Context, name string, op retry.Operation) (any, error) {
	return m.defaultRetry.Execute(ctx, name, op)
}

// isConnectionError reports whether err looks like a dropped or unusable
// connection. It only gates the repair ping; retryability stays with the
// policy conditions.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range connectionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
