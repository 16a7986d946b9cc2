package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/Phucdanghoc/File-store-sub000/internal/archive"
	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	"github.com/Phucdanghoc/File-store-sub000/internal/repository"
	"github.com/Phucdanghoc/File-store-sub000/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

// Container holds all application dependencies
type Container struct {
	Config  *AppConfig
	Logger  domain.Logger
	Metrics *service.Metrics

	SupabaseClient *repository.SupabaseClient
	Postgres       *pgxpool.Pool
	Redis          *goredis.Client
	AuthService    domain.AuthService

	Objects domain.ObjectStore
	Catalog domain.MetadataCatalog
	Jobs    domain.JobStatusStore
	Queue   domain.JobQueue
	Ledger  domain.OrphanLedger

	Engine      *archive.Engine
	Tasks       *service.TaskRunner
	Coordinator *service.PersistenceCoordinator
	Worker      *service.Worker
	Pool        *service.WorkerPool
	Reconciler  *service.Reconciler
	Scheduler   *service.Scheduler

	closers []func() error
}

// NewContainer connects the backends selected in cfg and wires the services
// on top of them. On error every connection opened so far is closed.
func NewContainer(ctx context.Context, cfg *AppConfig, logger domain.Logger) (_ *Container, err error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: service.InitMetrics(nil),
	}
	defer func() {
		if err != nil {
			_ = c.closeAll()
		}
	}()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.buildStores(ctx); err != nil {
		return nil, err
	}
	if err := c.buildAuth(); err != nil {
		return nil, err
	}

	c.Engine = archive.NewEngine(
		archive.WithCrackCeiling(cfg.CrackCeiling),
		archive.WithDefaultCharset(cfg.CrackDefaultCharset),
		archive.WithMaxEntrySize(cfg.MaxFileSize),
	)
	c.Tasks = service.NewTaskRunner(logger, c.Metrics, cfg.TaskTimeout)

	buckets := map[domain.Category]string{service.DefaultBucketKey: cfg.DefaultBucket}
	for name, bucket := range cfg.Buckets {
		buckets[domain.Category(name)] = bucket
	}
	c.Coordinator = service.NewPersistenceCoordinator(service.CoordinatorDeps{
		Objects: c.Objects,
		Catalog: c.Catalog,
		Jobs:    c.Jobs,
		Queue:   c.Queue,
		Ledger:  c.Ledger,
		Tasks:   c.Tasks,
		Engine:  c.Engine,
		Metrics: c.Metrics,
		Logger:  logger,
	}, service.CoordinatorConfig{
		Buckets:     buckets,
		MaxFileSize: cfg.MaxFileSize,
		PresignTTL:  cfg.PresignTTL,
	})

	executors := service.NewExecutors(c.Coordinator, c.Engine, service.NewPDFProcessor(logger), logger)
	c.Worker = service.NewWorker(c.Coordinator, c.Jobs, executors, cfg.JobMaxAttempts, logger,
		service.WithLease(cfg.ClaimIdle))
	c.Pool = service.NewWorkerPool(c.Queue, c.Worker, cfg.HeavyWorkers, cfg.QuickWorkers, logger)

	c.Reconciler = service.NewReconciler(c.Objects, c.Ledger, c.Metrics, cfg.ReconcileBatch, logger)
	c.Scheduler = service.NewScheduler(cfg.TaskTimeout, logger)
	if err := service.ScheduleReconciler(c.Scheduler, c.Reconciler, cfg.ReconcileSchedule); err != nil {
		return nil, err
	}
	return c, nil
}

// connect opens the shared clients the selected backends need.
func (c *Container) connect(ctx context.Context) error {
	cfg := c.Config
	if cfg.uses(BackendSupabase) || (cfg.AuthStaticTokens == "" && cfg.SupabaseURL != "") {
		client := repository.NewSupabaseClient(cfg, c.Logger)
		if err := client.Initialize(); err != nil {
			return err
		}
		c.SupabaseClient = client
	}
	if cfg.uses(BackendPostgres) {
		pool, err := repository.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		c.Postgres = pool
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
	}
	if cfg.uses(BackendRedis) {
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		c.Redis = client
		c.closers = append(c.closers, client.Close)
	}
	return nil
}

func (c *Container) buildStores(ctx context.Context) error {
	cfg := c.Config

	switch cfg.StorageBackend {
	case BackendSupabase:
		c.Objects = repository.NewSupabaseObjectStore(c.SupabaseClient, c.Logger)
	case BackendGCS:
		client, err := repository.NewGCSClient(ctx)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, client.Close)
		c.Objects = repository.NewGCSObjectStore(client, c.Logger)
	default:
		c.Objects = repository.NewMemoryObjectStore()
	}

	switch cfg.CatalogBackend {
	case BackendSupabase:
		c.Catalog = repository.NewSupabaseDocumentRepository(c.SupabaseClient, c.Logger)
	case BackendPostgres:
		c.Catalog = repository.NewPostgresCatalog(c.Postgres)
	default:
		c.Catalog = repository.NewMemoryCatalog()
	}

	switch cfg.JobStoreBackend {
	case BackendPostgres:
		c.Jobs = repository.NewPostgresJobStore(c.Postgres)
	case BackendFirestore:
		client, err := repository.NewFirestoreClient(ctx, cfg.GCPProject)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, client.Close)
		c.Jobs = repository.NewFirestoreJobStore(client)
	default:
		c.Jobs = repository.NewMemoryJobStore()
	}

	switch cfg.QueueBackend {
	case BackendRedis:
		opts := []repository.RedisQueueOption{repository.WithClaimIdle(cfg.ClaimIdle)}
		if cfg.ConsumerName != "" {
			opts = append(opts, repository.WithConsumerName(cfg.ConsumerName))
		}
		c.Queue = repository.NewRedisJobQueue(c.Redis, c.Logger, opts...)
	default:
		c.Queue = repository.NewMemoryJobQueue()
	}

	switch cfg.LedgerBackend {
	case BackendRedis:
		c.Ledger = repository.NewRedisOrphanLedger(c.Redis)
	default:
		c.Ledger = repository.NewMemoryOrphanLedger()
	}

	c.Logger.Info("Backends selected",
		"storage", cfg.StorageBackend,
		"catalog", cfg.CatalogBackend,
		"jobs", cfg.JobStoreBackend,
		"queue", cfg.QueueBackend,
		"ledger", cfg.LedgerBackend,
	)
	return nil
}

// buildAuth prefers static tokens; otherwise Supabase Auth validates tokens.
func (c *Container) buildAuth() error {
	if c.Config.AuthStaticTokens != "" {
		auth, err := service.NewStaticAuthService(c.Config.AuthStaticTokens)
		if err != nil {
			return err
		}
		c.AuthService = auth
		c.Logger.Warn("Using static bearer tokens for authentication")
		return nil
	}
	if c.SupabaseClient != nil {
		c.AuthService = service.NewAuthService(c.SupabaseClient, c.Logger)
	}
	return nil
}

// Migrate applies the catalog and job schema when postgres is in use.
func (c *Container) Migrate(ctx context.Context) error {
	if c.Postgres == nil {
		return fmt.Errorf("migrate: no postgres backend configured")
	}
	return repository.Migrate(ctx, c.Postgres, c.Logger)
}

// Close stops accepting background work, waits for running tasks and then
// closes the queue and every backend connection.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Tasks != nil {
		if err := c.Tasks.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("background tasks: %w", err))
		}
	}
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("queue: %w", err))
		}
	}
	if err := c.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Container) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
