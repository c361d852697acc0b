// Package database opens the Postgres connection and applies the embedded
// schema migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/database/migrations"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, uri string) (*sql.DB, error) {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}

	return db, nil
}

// Migrate applies every pending up migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	slog.Info("running database migrations")
	return run(ctx, db, (*migrate.Migrate).Up)
}

// MigrateDown reverts every applied migration.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	slog.Warn("reverting database migrations")
	return run(ctx, db, (*migrate.Migrate).Down)
}

func run(ctx context.Context, db *sql.DB, step func(*migrate.Migrate) error) error {
	m, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := step(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("database schema is empty")
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		slog.Info("database schema migrated", "version", version, "dirty", dirty)
	}
	return nil
}

// newMigrator reads migrations from the embedded files. The driver holds a
// single connection of db; closing the migrator returns it to the pool.
func newMigrator(ctx context.Context, db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
