// Package app wires stores, caches, queues and services for both binaries.
// Without DATABASE_URL everything runs in process memory; without REDIS_URL
// settings are cached in process; without KAFKA_BROKERS the fraud-check
// queue is an in-process channel.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"benefits/internal/audit"
	auditmemory "benefits/internal/audit/store/memory"
	auditpostgres "benefits/internal/audit/store/postgres"
	claimmetrics "benefits/internal/claim/metrics"
	"benefits/internal/claim/monitor"
	claimservice "benefits/internal/claim/service"
	claimstore "benefits/internal/claim/store"
	fraudmetrics "benefits/internal/fraudcheck/metrics"
	fraudmodels "benefits/internal/fraudcheck/models"
	"benefits/internal/fraudcheck/queue"
	fraudstore "benefits/internal/fraudcheck/store"
	"benefits/internal/fraudcheck/worker"
	identitymetrics "benefits/internal/identity/metrics"
	identityservice "benefits/internal/identity/service"
	identitystore "benefits/internal/identity/store"
	"benefits/internal/platform/config"
	"benefits/internal/platform/httpserver"
	"benefits/internal/platform/metrics"
	"benefits/internal/platform/postgres"
	platformredis "benefits/internal/platform/redis"
	riskmetrics "benefits/internal/risk/metrics"
	riskservice "benefits/internal/risk/service"
	"benefits/internal/settings"
	settingscache "benefits/internal/settings/cache"
	settingsstore "benefits/internal/settings/store"
	tenantmetrics "benefits/internal/tenant/metrics"
	tenantservice "benefits/internal/tenant/service"
	tenantstore "benefits/internal/tenant/store/tenant"
	whitelistservice "benefits/internal/whitelist/service"
	whiteliststore "benefits/internal/whitelist/store"
	txcontext "benefits/pkg/platform/tx"
)

const memoryQueueBuffer = 1024

type tenantStore interface {
	tenantservice.TenantStore
	claimservice.Ledger
	riskservice.TenantNames
}

type claimStore interface {
	claimservice.Store
	riskservice.ClaimHistory
	monitor.StuckCounter
}

type settingsStore interface {
	settings.Source
	settings.Writer
}

type deadLetterStore interface {
	worker.DeadLetterStore
	List(ctx context.Context, limit int) ([]fraudmodels.DeadLetter, error)
}

// Queue carries fraud-check tasks from intake to the worker.
type Queue interface {
	claimservice.Enqueuer
	worker.Consumer
	Close()
}

// App holds the wired services.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	Audit      *audit.Publisher
	Tenants    *tenantservice.Service
	Settings   *settings.Service
	Thresholds *settings.Provider
	Identity   *identityservice.Service
	Whitelist  *whitelistservice.Service
	Risk       *riskservice.Service
	Claims     *claimservice.Service
	Queue      Queue
	Worker     *worker.Worker
	Monitor    *monitor.Monitor

	deadLetters deadLetterStore
	checks      []httpserver.HealthCheck
	closers     []func() error
}

// New connects to the configured backends and builds every service. On
// error anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: metrics.NewRegistry(version),
	}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	var (
		tenants     tenantStore
		identities  identityservice.Store
		pairs       whitelistservice.Store
		claims      claimStore
		settingsDB  settingsStore
		auditStore  audit.Store
		tx          txcontext.Runner
		deadLetters deadLetterStore
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.checks = append(a.checks, httpserver.HealthCheck{Name: "postgres", Check: pinger(db)})

		tenants = tenantstore.NewPostgres(db)
		identities = identitystore.NewPostgres(db)
		pairs = whiteliststore.NewPostgres(db)
		claims = claimstore.NewPostgres(db)
		settingsDB = settingsstore.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		tx = postgres.NewTxRunner(db)
		deadLetters = fraudstore.NewPostgres(db)
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		runner := &txcontext.LockRunner{}
		tenants = tenantstore.NewInMemory(tenantstore.WithLockRunner(runner))
		identities = identitystore.NewInMemory()
		pairs = whiteliststore.NewInMemory()
		claims = claimstore.NewInMemory(claimstore.WithLockRunner(runner))
		settingsDB = settingsstore.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
		tx = runner
		deadLetters = fraudstore.NewInMemory()
		logger.WarnContext(ctx, "DATABASE_URL not set; using in-memory stores")
	}
	a.deadLetters = deadLetters

	var cache settings.Cache
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		a.checks = append(a.checks, httpserver.HealthCheck{Name: "redis", Check: rc.Health})
		cache = settingscache.NewRedis(rc.Client, cfg.Redis.SettingsTTL)
	} else {
		cache = settingscache.NewMemory(cfg.Redis.SettingsTTL)
	}

	a.Audit = audit.NewPublisher(auditStore)
	a.Thresholds = settings.NewProvider(settingsDB, cache, settings.WithProviderLogger(logger))
	a.Settings = settings.NewService(settingsDB, a.Thresholds,
		settings.WithLogger(logger),
		settings.WithAuditPublisher(a.Audit),
	)
	a.Tenants = tenantservice.New(tenants,
		tenantservice.WithLogger(logger),
		tenantservice.WithAuditPublisher(a.Audit),
		tenantservice.WithMetrics(tenantmetrics.New(a.Registry)),
	)

	if a.Identity, err = identityservice.New(identities, a.Thresholds,
		identityservice.WithLogger(logger),
		identityservice.WithAuditPublisher(a.Audit),
		identityservice.WithMetrics(identitymetrics.New(a.Registry)),
	); err != nil {
		return nil, err
	}
	if a.Whitelist, err = whitelistservice.New(pairs, a.Identity,
		whitelistservice.WithLogger(logger),
		whitelistservice.WithAuditPublisher(a.Audit),
	); err != nil {
		return nil, err
	}
	if a.Risk, err = riskservice.New(a.Identity, a.Whitelist, claims, tenants, a.Thresholds,
		riskservice.WithLogger(logger),
		riskservice.WithMetrics(riskmetrics.New(a.Registry)),
	); err != nil {
		return nil, err
	}

	claimMetrics := claimmetrics.New(a.Registry)
	claimOpts := []claimservice.Option{
		claimservice.WithLogger(logger),
		claimservice.WithAuditPublisher(a.Audit),
		claimservice.WithMetrics(claimMetrics),
	}
	if cfg.Worker.AsyncFraudCheck {
		if a.Queue, err = a.openQueue(ctx); err != nil {
			return nil, err
		}
		claimOpts = append(claimOpts, claimservice.WithAsyncFraudCheck(a.Queue))
	}
	if a.Claims, err = claimservice.New(claims, tenants, a.Identity, a.Risk, tx, claimOpts...); err != nil {
		return nil, err
	}

	if a.Worker, err = worker.New(a.Risk, a.Claims, deadLetters,
		worker.WithLogger(logger),
		worker.WithAuditPublisher(a.Audit),
		worker.WithMetrics(fraudmetrics.New(a.Registry)),
		worker.WithRetry(cfg.Worker.MaxAttempts, cfg.Worker.Backoff),
	); err != nil {
		return nil, err
	}
	if a.Monitor, err = monitor.New(claims, cfg.Worker.StuckAfter,
		monitor.WithLogger(logger),
		monitor.WithMetrics(claimMetrics),
	); err != nil {
		return nil, err
	}
	ready = true
	return a, nil
}

func (a *App) openQueue(ctx context.Context) (Queue, error) {
	cfg := a.Config
	if len(cfg.Kafka.Brokers) == 0 {
		a.Logger.WarnContext(ctx, "KAFKA_BROKERS not set; fraud-check tasks are held in memory")
		q := queue.NewMemory(memoryQueueBuffer, cfg.Worker.Concurrency)
		a.closers = append(a.closers, func() error { q.Close(); return nil })
		return q, nil
	}
	q, err := queue.NewKafka(cfg.Kafka, cfg.Worker.Concurrency, queue.WithKafkaLogger(a.Logger))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { q.Close(); return nil })
	if err := q.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
		return nil, fmt.Errorf("provision fraud-check topic: %w", err)
	}
	a.checks = append(a.checks, httpserver.HealthCheck{Name: "kafka", Check: q.Health})
	return q, nil
}

// DeadLetters lists fraud-check tasks that exhausted their retries.
func (a *App) DeadLetters(ctx context.Context, limit int) ([]fraudmodels.DeadLetter, error) {
	return a.deadLetters.List(ctx, limit)
}

// HealthChecks returns readiness probes for every external backend in use.
func (a *App) HealthChecks() []httpserver.HealthCheck {
	return a.checks
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func pinger(db *sqlx.DB) func(ctx context.Context) error {
	return db.PingContext
}
