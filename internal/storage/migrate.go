package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"capex/internal/log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded ledger_rows migrations to the database
// at dbPath and returns the resulting schema version.
func RunMigrations(dbPath string) (uint, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open %s for migration: %w", dbPath, err)
	}
	defer conn.Close()

	target, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("sqlite migration target: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("embedded ledger migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return 0, fmt.Errorf("ledger migrator: %w", err)
	}
	defer m.Close()

	return Up(m, dbPath)
}

// Up moves m to the latest version. A dirty schema is an error: a previous
// run failed half way and needs a manual fix.
func Up(m *migrate.Migrate, target string) (uint, error) {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate ledger schema: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read ledger schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("ledger schema at version %d is dirty", version)
	}
	log.WithComponent(log.ComponentStorage).Info("Ledger schema ready", "target", target, "version", version)
	return version, nil
}
