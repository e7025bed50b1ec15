// Package database applies the versioned SQL schema to PostgreSQL.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/Orochi-WhatsApp/config"
	"github.com/amirphl/Orochi-WhatsApp/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

// Migrator wraps a golang-migrate instance reading the embedded SQL files
type Migrator struct {
	m      *migrate.Migrate
	db     *sql.DB
	logger *log.Logger
}

// NewMigrator opens a dedicated connection for schema changes
func NewMigrator(cfg config.DatabaseConfig, logger *log.Logger) (*Migrator, error) {
	if logger == nil {
		logger = log.Default()
	}

	db, err := sql.Open("postgres", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, cfg.Name, driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{m: m, db: db, logger: logger}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.logger.Println("database schema is up to date")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := mg.m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	mg.logger.Printf("database schema migrated to version %d (dirty=%t)", version, dirty)
	return nil
}

// Down rolls back the given number of migrations
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// Migrate runs all pending migrations and closes the connection
func Migrate(cfg config.DatabaseConfig, logger *log.Logger) error {
	mg, err := NewMigrator(cfg, logger)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}
