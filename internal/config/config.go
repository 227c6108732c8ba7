// Package config defines service configuration and its loader.
package config

import (
	"runtime"
	"time"
)

// Storage, cache and log choices.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// StorageDriver selects the ledger backend.
	StorageDriver string `koanf:"storage_driver" validate:"oneof=memory sqlite postgres"`

	// StorageDSN is the database connection string for sqlite and postgres.
	StorageDSN string `koanf:"storage_dsn" validate:"required_unless=StorageDriver memory"`

	// AutoMigrate applies schema migrations at startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	// DBPingTimeout bounds how long startup waits for the database.
	DBPingTimeout time.Duration `koanf:"db_ping_timeout" validate:"gt=0"`

	// CacheDriver selects the evaluation cache.
	CacheDriver string `koanf:"cache_driver" validate:"oneof=memory redis none"`

	// CacheTTL is how long an evaluation batch stays fresh.
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gt=0"`

	// RedisURL is used when CacheDriver is redis, e.g. redis://localhost:6379/0.
	RedisURL string `koanf:"redis_url" validate:"required_if=CacheDriver redis"`

	// CachePrefix namespaces redis keys.
	CachePrefix string `koanf:"cache_prefix"`

	// CatalogPath points at a catalog YAML file; empty uses the built-in catalog.
	CatalogPath string `koanf:"catalog_path"`

	// SeedCatalog upserts the catalog into storage at startup.
	SeedCatalog bool `koanf:"seed_catalog"`

	// RecentWindow is the lookback for "recent reviews".
	RecentWindow time.Duration `koanf:"recent_window" validate:"gt=0"`

	// LowReviewWindow is the lookback for the no-low-reviews check.
	LowReviewWindow time.Duration `koanf:"low_review_window" validate:"gt=0"`

	// MinDescriptionLength is the description length counted as complete.
	MinDescriptionLength int `koanf:"min_description_length" validate:"gte=0"`

	// WorkerCount sets the number of award writer workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// QueueSize bounds each worker queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// DecaySweepInterval is the period of the decay sweep; zero disables it.
	DecaySweepInterval time.Duration `koanf:"decay_sweep_interval" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		StorageDriver:        StorageMemory,
		AutoMigrate:          true,
		DBPingTimeout:        30 * time.Second,
		CacheDriver:          CacheMemory,
		CacheTTL:             5 * time.Minute,
		CachePrefix:          "wolfinder:badges",
		SeedCatalog:          true,
		RecentWindow:         30 * 24 * time.Hour,
		LowReviewWindow:      180 * 24 * time.Hour,
		MinDescriptionLength: 50,
		WorkerCount:          runtime.NumCPU(),
		QueueSize:            256,
		DecaySweepInterval:   time.Hour,
		ShutdownTimeout:      15 * time.Second,
	}
}
