package service

import (
	"time"

	"github.com/wolfinder/badges/internal/adapters/repository"
	"github.com/wolfinder/badges/internal/config"
	"github.com/wolfinder/badges/internal/domain/catalog"
	"github.com/wolfinder/badges/internal/domain/evalcache"
	"github.com/wolfinder/badges/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. The default is config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses store instead of opening one from the configuration.
// The caller keeps ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.ownsStore = false
		}
	}
}

// WithCache uses c instead of building one from the configuration.
func WithCache(c evalcache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithCatalog uses cat instead of loading one from the configuration.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(s *Service) {
		if cat != nil {
			s.catalog = cat
		}
	}
}

// WithClock overrides time.Now across the engine, the store and the aggregator it builds.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
