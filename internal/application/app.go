// Package application assembles the normalizer from configuration: rule
// profile, optional enrichment client and cache, optional change-log store,
// metrics and the core service. Both binaries start here.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/addrnorm/internal/config"
	"github.com/JonMunkholm/addrnorm/internal/core"
	"github.com/JonMunkholm/addrnorm/internal/enrich"
	"github.com/JonMunkholm/addrnorm/internal/metrics"
	"github.com/JonMunkholm/addrnorm/internal/rules"
	"github.com/JonMunkholm/addrnorm/internal/store"
)

// Options adjust Build for the calling binary.
type Options struct {
	// Registerer receives the metrics. Nil skips registration (CLI runs).
	Registerer prometheus.Registerer
	// WorkDir anchors the rule profile search; empty uses the process
	// working directory.
	WorkDir string
	// SkipStore leaves persistence off even when DATABASE_URL is set.
	SkipStore bool
	Logger    *slog.Logger
}

// App holds the wired components. Close releases them.
type App struct {
	Config  *config.Config
	Profile *rules.Profile
	Service *core.Service
	Limiter *core.BatchLimiter
	Metrics *metrics.Metrics
	// Enricher is nil when enrichment is disabled.
	Enricher *enrich.Client
	// Store is nil when persistence is disabled.
	Store *store.Store

	pool  *pgxpool.Pool
	redis *redis.Client
	log   *slog.Logger
}

// Build wires an App from cfg. External services are contacted here, so a
// bad DATABASE_URL or REDIS_URL fails fast.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, log: log}

	if opts.Registerer != nil {
		a.Metrics = metrics.New(opts.Registerer)
	}

	a.Profile = rules.Load(rules.Options{
		OverridePath:   cfg.Rules.ProfilePath,
		StreetAbbrPath: cfg.Rules.StreetAbbrPath,
		WorkDir:        opts.WorkDir,
		SearchDepth:    cfg.Rules.SearchDepth,
		Logger:         log,
	})

	if cfg.Enrich.Enabled {
		if err := a.buildEnricher(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Database.Enabled() && !opts.SkipStore {
		if err := a.buildStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	svcCfg := core.Config{
		Profile:      a.Profile,
		Metrics:      a.Metrics,
		Workers:      cfg.Pipeline.Workers,
		BatchHistory: cfg.Pipeline.BatchHistory,
		Logger:       log,
	}
	// Assign only non-nil pointers so the interfaces stay nil
	if a.Enricher != nil {
		svcCfg.Enricher = a.Enricher
	}
	if a.Store != nil {
		svcCfg.ChangeLog = a.Store
	}
	a.Service = core.NewService(svcCfg)
	a.Limiter = core.NewBatchLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime, a.Metrics)
	return a, nil
}

func (a *App) buildEnricher(ctx context.Context) error {
	cfg := a.Config.Enrich

	var cache enrich.Cache
	switch {
	case cfg.RedisURL != "":
		client, err := enrich.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("enrichment cache: %w", err)
		}
		a.redis = client
		cache = enrich.NewRedisCache(client, cfg.CacheTTL)
		a.log.Info("enrichment cache", "backend", "redis")
	case cfg.CacheSize > 0:
		cache = enrich.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)
		a.log.Info("enrichment cache", "backend", "memory", "size", cfg.CacheSize)
	}

	a.Enricher = enrich.NewClient(enrich.Config{
		BaseURL:      cfg.URL,
		Timeout:      cfg.Timeout,
		Retries:      cfg.Retries,
		RetryBackoff: cfg.RetryBackoff,
		RatePerSec:   cfg.RatePerSec,
		Cache:        cache,
		Metrics:      a.Metrics,
		Logger:       a.log,
	})
	if err := a.Enricher.Health(ctx); err != nil {
		// Rows fall back to base normalization while the parser is down
		a.log.Warn("address parser not reachable", "url", a.Enricher.BaseURL(), "error", err)
	}
	return nil
}

func (a *App) buildStore(ctx context.Context) error {
	db := a.Config.Database
	pool, err := store.OpenPool(ctx, db.URL, store.PoolConfig{
		MaxConns:        int32(db.MaxConns),
		MinConns:        int32(db.MinConns),
		MaxConnLifetime: db.MaxConnLifetime,
		MaxConnIdleTime: db.MaxConnIdleTime,
	})
	if err != nil {
		return fmt.Errorf("change log: %w", err)
	}
	a.pool = pool
	a.Store = store.New(pool, a.log)
	if err := a.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("change log: %w", err)
	}
	a.log.Info("change log enabled")
	return nil
}

// StartBackground runs the retention scheduler when persistence is on. It
// returns immediately; jobs stop when ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	if a.Store == nil {
		return
	}
	go a.Store.StartRetentionScheduler(ctx, store.RetentionConfig{
		RetentionDays: a.Config.ChangeLog.RetentionDays,
		Interval:      a.Config.ChangeLog.PurgeInterval,
	})
}

// Close releases the pool and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
