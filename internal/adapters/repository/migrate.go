package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/wolfinder/badges/pkg/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every pending up migration for dialect and returns the
// resulting schema version. It uses its own connection because the migrate
// driver closes the database it is given.
func Migrate(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (uint, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	db, err := openDB(ctx, dialect, dsn, o)
	if err != nil {
		return 0, err
	}

	var driver database.Driver
	switch dialect {
	case DialectPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case DialectSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownDialect, dialect)
	}
	if err != nil {
		_ = db.Close()
		return 0, fmt.Errorf("create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		_ = driver.Close()
		return 0, fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		_ = driver.Close()
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return from, fmt.Errorf("database is in dirty state at version %d", from)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, fmt.Errorf("run migrations: %w", err)
	}

	to, _, err := m.Version()
	if err != nil {
		return from, fmt.Errorf("read migration version: %w", err)
	}
	logger.Named("repository").Info(ctx, "migrations applied",
		logger.String("dialect", string(dialect)),
		logger.Int64("from_version", int64(from)),
		logger.Int64("to_version", int64(to)),
	)
	return to, nil
}
