package storage

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/mfenderov/recall/internal/storage/migrations"
)

func (s *Store) migrationProvider() (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectSQLite3, s.db.DB, nil,
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(migrations.All()...),
	)
}

// Migrate applies pending schema migrations. Running it on an up-to-date
// database is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	provider, err := s.migrationProvider()
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := s.migrationProvider()
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider.GetDBVersion(ctx)
}
