// Package app wires the retry engine, connection manager, and utility
// wrappers into one explicitly constructed service. There is no package
// singleton: construct an App at startup and pass it to whatever needs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/resilience/internal/conn"
	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/infra/fileops"
	"github.com/vietddude/resilience/internal/infra/httpapi"
	"github.com/vietddude/resilience/internal/infra/postgres"
	"github.com/vietddude/resilience/internal/infra/redisclient"
	"github.com/vietddude/resilience/internal/metrics"
)

// ErrNotInitialized is returned when a utility accessor runs before Init
// completed for that resource.
var ErrNotInitialized = errors.New("not initialized")

// HealthSnapshot is the result of one round of health checks.
type HealthSnapshot struct {
	Database  bool      `json:"database"`
	Redis     bool      `json:"redis"`
	Timestamp time.Time `json:"timestamp"`
}

// App owns the process-wide connections and hands out the utility wrappers.
type App struct {
	cfg       config.AppConfig
	log       *slog.Logger
	cm        *conn.Manager
	api       *httpapi.Client
	fileUtils *fileops.Utils

	mu      sync.RWMutex
	dbUtils *postgres.DBUtils
	cache   *redisclient.CacheUtils

	healthMu   sync.Mutex
	healthTTL  time.Duration
	lastHealth HealthSnapshot
}

// New builds an App. Retry overrides from configuration apply to every
// policy the connection manager owns.
func New(cfg config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	cm, err := conn.NewManager(log, cfg.Retry.Options()...)
	if err != nil {
		return nil, err
	}
	api, err := httpapi.NewClient(httpapi.WithRetryOptions(cfg.Retry.Options()...))
	if err != nil {
		return nil, err
	}
	fileUtils, err := fileops.NewUtils(cfg.Retry.Options()...)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:       cfg,
		log:       log,
		cm:        cm,
		api:       api,
		fileUtils: fileUtils,
		healthTTL: 10 * time.Second,
	}, nil
}

// ConnManager exposes the connection manager for callers needing ad hoc
// retried operations.
func (a *App) ConnManager() *conn.Manager {
	return a.cm
}

// APIClient returns the retry-backed client for external HTTP APIs.
// Unlike the store facades it needs no Init: there is no connection to
// establish up front.
func (a *App) APIClient() *httpapi.Client {
	return a.api
}

// FileUtils returns the retry-backed filesystem facade.
func (a *App) FileUtils() *fileops.Utils {
	return a.fileUtils
}

// Init establishes the backing connections in order: database first, then
// cache. Each connect runs under its resource preset, so transient startup
// failures (store still booting) are absorbed.
func (a *App) Init(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return err
	}
	if err := a.initCache(ctx); err != nil {
		return err
	}
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := conn.ConnectDatabase(ctx, a.cm, func(ctx context.Context) (*postgres.DB, error) {
		return postgres.NewDB(ctx, a.cfg.Database)
	})
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}

	if dir := a.cfg.Database.MigrationsDir; dir != "" {
		if err := goose.SetDialect("postgres"); err != nil {
			return err
		}
		if err := goose.Up(db.DB.DB, dir); err != nil {
			return fmt.Errorf("failed to migrate db: %w", err)
		}
	}

	db.StartMetricsCollector(ctx)

	a.mu.Lock()
	a.dbUtils = postgres.NewDBUtils(db, a.cm)
	a.mu.Unlock()

	a.log.Info("database initialized")
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	client, err := conn.ConnectCache(ctx, a.cm, func(ctx context.Context) (*redisclient.Client, error) {
		return redisclient.NewClient(ctx, a.cfg.Redis)
	})
	if err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	a.mu.Lock()
	a.cache = redisclient.NewCacheUtils(client, a.cm)
	a.mu.Unlock()

	a.log.Info("cache initialized")
	return nil
}

// DatabaseUtils returns the database facade, or an ErrNotInitialized-wrapped
// error before Init completed.
func (a *App) DatabaseUtils() (*postgres.DBUtils, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.dbUtils == nil {
		return nil, fmt.Errorf("database utils: %w", ErrNotInitialized)
	}
	return a.dbUtils, nil
}

// CacheUtils returns the cache facade, or an ErrNotInitialized-wrapped error
// before Init completed.
func (a *App) CacheUtils() (*redisclient.CacheUtils, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.cache == nil {
		return nil, fmt.Errorf("cache utils: %w", ErrNotInitialized)
	}
	return a.cache, nil
}

// PerformHealthChecks probes both stores and returns a snapshot. Probes are
// rate limited: within healthTTL of the last round the cached snapshot is
// returned, so request middleware cannot stampede the stores.
func (a *App) PerformHealthChecks(ctx context.Context) HealthSnapshot {
	a.healthMu.Lock()
	defer a.healthMu.Unlock()

	if time.Since(a.lastHealth.Timestamp) < a.healthTTL {
		return a.lastHealth
	}

	snap := HealthSnapshot{Timestamp: time.Now().UTC()}

	a.mu.RLock()
	dbUtils, cache := a.dbUtils, a.cache
	a.mu.RUnlock()

	if dbUtils != nil {
		snap.Database = dbUtils.IsHealthy(ctx)
	}
	if cache != nil {
		snap.Redis = cache.IsHealthy(ctx)
	}

	metrics.ComponentHealthy.WithLabelValues("database").Set(boolToFloat(snap.Database))
	metrics.ComponentHealthy.WithLabelValues("redis").Set(boolToFloat(snap.Redis))

	a.lastHealth = snap
	return snap
}

// Close releases the backing connections.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.dbUtils != nil {
		if err := a.dbUtils.Handle().Close(); err != nil {
			errs = append(errs, err)
		}
		a.dbUtils = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, err)
		}
		a.cache = nil
	}
	return errors.Join(errs...)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
