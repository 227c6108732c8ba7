// Package service wires storage, the evaluation cache, the catalog, the
// engine and the background workers into the dependencies the HTTP API needs.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/wolfinder/badges/internal/adapters/cache"
	"github.com/wolfinder/badges/internal/adapters/mq/worker"
	"github.com/wolfinder/badges/internal/adapters/repository"
	"github.com/wolfinder/badges/internal/config"
	"github.com/wolfinder/badges/internal/domain/catalog"
	"github.com/wolfinder/badges/internal/domain/engine"
	"github.com/wolfinder/badges/internal/domain/evalcache"
	"github.com/wolfinder/badges/internal/domain/metrics"
	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/internal/domain/requirement"
	"github.com/wolfinder/badges/pkg/logger"
	pmetrics "github.com/wolfinder/badges/pkg/metrics"
)

// Service implements the API dependencies for the badge engine.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	now    func() time.Time

	// Components; injected ones are kept, the rest are built by Start.
	store     repository.Store
	ownsStore bool
	cache     evalcache.Cache
	catalog   *catalog.Catalog
	registry  *requirement.Registry
	engine    *engine.Engine
	pool      *worker.Pool
	sweeper   *worker.Sweeper

	// State
	started    bool
	startedAt  time.Time
	builtCache bool
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:       config.New(),
		ownsStore: true,
		now:       time.Now,
		registry:  requirement.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting badge service...")

	if err := s.loadCatalog(); err != nil {
		return err
	}
	if err := s.openStore(ctx); err != nil {
		return err
	}
	if s.cfg.SeedCatalog {
		if err := s.store.SeedCatalog(ctx, s.catalog.All()); err != nil {
			s.closeOwned()
			return fmt.Errorf("seed catalog: %w", err)
		}
	}
	if err := s.openCache(ctx); err != nil {
		s.closeOwned()
		return err
	}

	agg := metrics.NewAggregator(s.store,
		metrics.WithClock(s.now),
		metrics.WithRecentWindow(s.cfg.RecentWindow),
		metrics.WithLowReviewWindow(s.cfg.LowReviewWindow),
		metrics.WithMinDescriptionLength(s.cfg.MinDescriptionLength),
	)
	s.engine = engine.New(s.catalog, requirement.NewEvaluator(s.registry), agg, s.store,
		engine.WithCache(s.cache),
		engine.WithClock(s.now),
		engine.WithLogger(s.logger.Named("engine")),
	)

	// Jobs outlive the request that enqueued them.
	bg := context.WithoutCancel(ctx)
	s.pool = worker.NewPool(worker.HandlerFunc(s.handle),
		worker.WithWorkers(s.cfg.WorkerCount),
		worker.WithQueueCapacity(s.cfg.QueueSize),
		worker.WithShutdownTimeout(s.cfg.ShutdownTimeout),
		worker.WithCoalesce(model.JobDecaySweep),
		worker.WithLogger(s.logger.Named("worker-pool")),
	)
	s.pool.Start(bg)
	s.sweeper = worker.NewSweeper(s.store, s.pool, s.cfg.DecaySweepInterval, s.logger.Named("decay-sweeper"))
	s.sweeper.Start(bg)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "badge service started",
		logger.String("storage", s.cfg.StorageDriver),
		logger.String("cache", s.cfg.CacheDriver),
		logger.String("catalog_version", s.catalog.Version()),
		logger.Int("badges", s.catalog.Len()),
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Duration("decay_sweep_interval", s.cfg.DecaySweepInterval),
	)
	return nil
}

func (s *Service) loadCatalog() error {
	if s.catalog == nil {
		var err error
		if s.cfg.CatalogPath != "" {
			s.catalog, err = catalog.Load(s.cfg.CatalogPath)
		} else {
			s.catalog, err = catalog.Default()
		}
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}
	if err := s.catalog.Validate(s.registry); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}
	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	if s.cfg.StorageDriver == config.StorageMemory {
		s.store = repository.NewMemoryStore(repository.WithClock(s.now))
		return nil
	}

	dialect, err := repository.ParseDialect(s.cfg.StorageDriver)
	if err != nil {
		return err
	}
	opts := []repository.Option{
		repository.WithClock(s.now),
		repository.WithPingTimeout(s.cfg.DBPingTimeout),
	}
	if s.cfg.AutoMigrate {
		if _, err := repository.Migrate(ctx, dialect, s.cfg.StorageDSN, opts...); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	store, err := repository.OpenSQL(ctx, dialect, s.cfg.StorageDSN, opts...)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

func (s *Service) openCache(ctx context.Context) error {
	if s.cache != nil {
		return nil
	}
	s.builtCache = true
	switch s.cfg.CacheDriver {
	case config.CacheRedis:
		c, err := cache.Dial(ctx, s.cfg.RedisURL, s.cfg.DBPingTimeout,
			cache.WithPrefix(s.cfg.CachePrefix),
			cache.WithTTL(s.cfg.CacheTTL),
			cache.WithLogger(s.logger.Named("cache")),
		)
		if err != nil {
			return err
		}
		s.cache = c
	case config.CacheNone:
		s.cache = evalcache.Nop{}
	default:
		s.cache = evalcache.NewMemoryCache(
			evalcache.WithTTL(s.cfg.CacheTTL),
			evalcache.WithClock(s.now),
			evalcache.WithCleanupInterval(s.cfg.CacheTTL),
		)
	}
	return nil
}

func (s *Service) closeOwned() {
	if s.builtCache {
		if c, ok := s.cache.(io.Closer); ok {
			_ = c.Close()
		}
		s.cache = nil
		s.builtCache = false
	}
	if s.ownsStore && s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
}

// Stop gracefully shuts down the service. Queued jobs are drained first.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping badge service...")

	s.sweeper.Stop()
	err := s.pool.Stop(ctx)
	s.closeOwned()

	s.started = false
	s.logger.Info(ctx, "badge service stopped")
	return err
}

// handle runs one background job.
func (s *Service) handle(ctx context.Context, job model.Job) error {
	switch job.Kind {
	case model.JobAwardPass:
		_, err := s.engine.AwardPass(ctx, job.ProfessionalID)
		return err
	case model.JobDecaySweep:
		_, err := s.engine.DecaySweep(ctx, job.ProfessionalID)
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
}

// running returns the engine when the service is started.
func (s *Service) running() (*engine.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.engine, nil
}

// EvaluateAll evaluates the whole catalog for a professional.
func (s *Service) EvaluateAll(ctx context.Context, professionalID int64) ([]model.EvaluationResult, error) {
	eng, err := s.running()
	if err != nil {
		return nil, err
	}
	return eng.EvaluateAll(ctx, professionalID)
}

// AwardPass evaluates and awards earned automatic badges synchronously.
func (s *Service) AwardPass(ctx context.Context, professionalID int64) (engine.AwardPassReport, error) {
	eng, err := s.running()
	if err != nil {
		return engine.AwardPassReport{}, err
	}
	return eng.AwardPass(ctx, professionalID)
}

// EnqueueAwardPass schedules an award pass on the professional's writer.
// It fails with a not found error for unknown professionals and with
// queue.ErrFull on backpressure.
func (s *Service) EnqueueAwardPass(ctx context.Context, professionalID int64) error {
	s.mu.RLock()
	started, store, pool := s.started, s.store, s.pool
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if _, err := store.Professional(ctx, professionalID); err != nil {
		return err
	}
	err := pool.Submit(ctx, model.Job{Kind: model.JobAwardPass, ProfessionalID: professionalID, RequestedAt: s.now()})
	if err != nil {
		s.logger.Warn(ctx, "award pass rejected",
			logger.Int64("professional_id", professionalID),
			logger.Error(err),
		)
	}
	return err
}

// AwardBadge awards a badge on behalf of an admin.
func (s *Service) AwardBadge(ctx context.Context, in engine.AwardInput) (model.AwardRecord, bool, error) {
	eng, err := s.running()
	if err != nil {
		return model.AwardRecord{}, false, err
	}
	return eng.AwardBadge(ctx, in)
}

// RevokeAward revokes an award by id.
func (s *Service) RevokeAward(ctx context.Context, awardID int64, by, reason string) (model.RevokeOutcome, model.AwardRecord, error) {
	eng, err := s.running()
	if err != nil {
		return model.RevokeNotFound, model.AwardRecord{}, err
	}
	return eng.RevokeAward(ctx, awardID, by, reason)
}

// RevokeBadge revokes the active award of slug for a professional.
func (s *Service) RevokeBadge(ctx context.Context, professionalID int64, slug, by, reason string) (model.RevokeOutcome, error) {
	eng, err := s.running()
	if err != nil {
		return model.RevokeNotFound, err
	}
	return eng.RevokeBadge(ctx, professionalID, slug, by, reason)
}

// ListActiveBadges returns the visible active awards of a professional.
func (s *Service) ListActiveBadges(ctx context.Context, professionalID int64) ([]model.ActiveBadge, error) {
	eng, err := s.running()
	if err != nil {
		return nil, err
	}
	return eng.ListActiveBadges(ctx, professionalID)
}

// History returns every award record of a professional.
func (s *Service) History(ctx context.Context, professionalID int64) ([]model.AwardRecord, error) {
	eng, err := s.running()
	if err != nil {
		return nil, err
	}
	return eng.History(ctx, professionalID)
}

// DecaySweep runs a decay sweep for a professional synchronously.
func (s *Service) DecaySweep(ctx context.Context, professionalID int64) (engine.DecayReport, error) {
	eng, err := s.running()
	if err != nil {
		return engine.DecayReport{}, err
	}
	return eng.DecaySweep(ctx, professionalID)
}

// Badges returns the catalog in evaluation order.
func (s *Service) Badges() []model.BadgeDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return []model.BadgeDefinition{}
	}
	return s.catalog.All()
}

// Store returns the storage backend, or nil before Start.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"storageDriver": s.cfg.StorageDriver,
		"cacheDriver":   s.cfg.CacheDriver,
		"workerCount":   s.cfg.WorkerCount,
		"queueSize":     s.cfg.QueueSize,
	}

	if s.started {
		queueLen := s.pool.Len()
		cacheEntries := s.cache.Len()

		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt) / time.Second)
		stats["queueLength"] = queueLen
		stats["cacheEntries"] = cacheEntries
		stats["catalogVersion"] = s.catalog.Version()
		stats["badgeCount"] = s.catalog.Len()

		pmetrics.UpdateQueueSize(queueLen)
		pmetrics.UpdateCacheEntries(cacheEntries)
		pmetrics.UpdateWorkerCount(s.pool.Workers())
	}

	return stats
}
