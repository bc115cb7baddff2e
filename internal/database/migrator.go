package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	// file:// source for migration directories given on the command line.
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/helixir/review-reply-service/migrations"
)

const migrationsTable = "schema_migrations"

// Migrator applies the schema in migrations/.
type Migrator struct {
	migrate *migrate.Migrate
	sqlDB   *sql.DB // stdlib wrapper over the pool; closed with the migrator
	source  string
	logger  zerolog.Logger
}

// MigrationStatus is the schema version recorded in schema_migrations.
type MigrationStatus struct {
	Version uint   `json:"version"`
	Dirty   bool   `json:"dirty"`
	Source  string `json:"source"`
}

// NewMigrator creates a migrator. An empty migrationsPath uses the migrations
// embedded in the binary; otherwise the directory must exist.
func NewMigrator(db *DB, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if db.pool == nil {
		return nil, errors.New("database pool not initialized")
	}

	var (
		src     source.Driver
		srcName string
		err     error
	)
	if migrationsPath == "" {
		srcName = "embedded"
		src, err = iofs.New(migrations.FS, ".")
		if err != nil {
			return nil, fmt.Errorf("open embedded migrations: %w", err)
		}
	} else {
		if _, err := os.Stat(migrationsPath); err != nil {
			return nil, fmt.Errorf("migrations path validation failed: %w", err)
		}
		srcName = "file://" + migrationsPath
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	var m *migrate.Migrate
	if src != nil {
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance(srcName, "postgres", driver)
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{
		migrate: m,
		sqlDB:   sqlDB,
		source:  srcName,
		logger:  logger.With().Str("migrations", srcName).Logger(),
	}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	m.logger.Info().Msg("applying migrations")
	if err := ignoreNoChange(m.migrate.Up()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Down rolls back every migration.
func (m *Migrator) Down() error {
	m.logger.Warn().Msg("rolling back all migrations")
	if err := ignoreNoChange(m.migrate.Down()); err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

// Steps runs n migrations (positive = up, negative = down). Stepping past the
// newest migration is not an error.
func (m *Migrator) Steps(n int) error {
	m.logger.Info().Int("steps", n).Msg("running migration steps")
	err := ignoreNoChange(m.migrate.Steps(n))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migration steps: %w", err)
	}
	return nil
}

// Version returns the current migration version.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

// Status reports the applied version. A database with no migrations yet
// reports version 0.
func (m *Migrator) Status() (MigrationStatus, error) {
	v, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{Source: m.source}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	return MigrationStatus{Version: v, Dirty: dirty, Source: m.source}, nil
}

// Force records version as applied without running it. Used to recover from
// a dirty schema after a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing migration version")
	return m.migrate.Force(version)
}

// Close releases the source and the stdlib wrapper. The pool stays open.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	return errors.Join(sourceErr, dbErr)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
