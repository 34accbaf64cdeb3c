// Package app assembles the processing stack shared by the API server and
// the CLI from a loaded configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/cache"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/config"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/inspect"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/storage"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/transform"
)

// App holds the wired components. Cache and Runs are nil when disabled.
type App struct {
	Config      *config.Config
	Logger      *observability.Logger
	Generator   transform.GeneratorCloser
	Transformer transform.Transformer
	Cache       cache.Client
	Runs        *storage.RunRepository
	Auditor     *monitoring.AuditLogger
	Inspector   *inspect.Inspector

	db *sql.DB
}

// Build connects the remote model, the result cache and the audit store.
// Cache and audit store come up concurrently. A missing credential surfaces as
// a config DomainError from the remote client.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	gen, err := transform.NewGenerator(ctx, cfg.Remote)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Generator: gen,
		Inspector: inspect.New(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := newCache(cfg.Cache)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		a.Cache = c
		return nil
	})
	g.Go(func() error {
		if !cfg.Audit.Enabled {
			return nil
		}
		db, err := storage.Open(gctx, storage.Options{
			Driver:          cfg.Audit.Driver,
			DSN:             cfg.AuditDSN(),
			MaxOpenConns:    auditMaxOpenConns(cfg.Audit),
			MaxIdleConns:    cfg.Audit.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("init audit store: %w", err)
		}
		a.db = db
		a.Runs = storage.NewRunRepository(db)
		return nil
	})
	if err := g.Wait(); err != nil {
		a.Close()
		return nil, err
	}

	var client transform.Transformer = transform.NewClient(gen, logger)
	if a.Cache != nil {
		if err := transform.PurgeStaleScope(ctx, a.Cache, gen.Model(), logger); err != nil {
			logger.Warn().Err(err).Msg("Cache scope check failed")
		}
		client = transform.NewCachedTransformer(client, a.Cache, cfg.Cache.TTL, gen.Model(), logger)
	}
	a.Transformer = client

	var store monitoring.RunStore
	if a.Runs != nil {
		store = a.Runs
	}
	a.Auditor = monitoring.NewAuditLogger(logger, store)

	logger.Info().
		Str("provider", cfg.Remote.Provider).
		Str("model", gen.Model()).
		Str("cache", cfg.Cache.Driver).
		Bool("audit", a.Runs != nil).
		Msg("Processing stack ready")

	return a, nil
}

// MachineConfig returns the session wiring for one machine.
func (a *App) MachineConfig(base context.Context, objects session.ObjectStore) session.Config {
	return session.Config{
		Transformer: a.Transformer,
		Objects:     objects,
		Inspector:   a.Inspector,
		Auditor:     a.Auditor,
		Logger:      a.Logger,
		BaseContext: base,
		Timeout:     a.Config.Remote.Timeout,
	}
}

// Checks returns readiness probes for the optional backends.
func (a *App) Checks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if a.Cache != nil {
		checks["cache"] = a.Cache.Ping
	}
	if a.db != nil {
		checks["audit"] = a.db.PingContext
	}
	return checks
}

// Close releases every connection. It is safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Generator != nil {
		if err := a.Generator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close generator: %w", err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newCache(cfg config.CacheConfig) (cache.Client, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemoryClient(cfg.MaxEntries), nil
	case "redis":
		c, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}

func auditMaxOpenConns(cfg config.AuditConfig) int {
	if cfg.Driver == "sqlite" {
		return cfg.SQLite.MaxOpenConns
	}
	return cfg.Postgres.MaxOpenConns
}
