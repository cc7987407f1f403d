package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// newMigrationProvider builds a goose provider over the embedded SQL files
func (s *Storage) newMigrationProvider() (*goose.Provider, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(database.DialectSQLite3, s.db, fsys)
}

// runMigrations applies all pending migrations
func (s *Storage) runMigrations(ctx context.Context) error {
	provider, err := s.newMigrationProvider()
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Debug("migration applied",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"duration", r.Duration)
	}

	return nil
}

// SchemaVersion returns the current database schema version
func (s *Storage) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := s.newMigrationProvider()
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
