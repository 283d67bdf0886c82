package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/tokengate/internal/infra/logging"
)

// Supported values of BackendConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned when the configured backend name is not supported.
var ErrUnknownBackend = errors.New("unknown user backend")

// BackendConfig selects and configures the credential store.
type BackendConfig struct {
	// Backend is one of "memory", "sqlite" or "postgres"
	Backend string `env:"BACKEND" default:"memory"`

	MemoryUserRepositoryConfig
	SQLiteUserRepositoryConfig
	PostgresUserRepositoryConfig
}

// BackendRepositoryFactory returns the factory for the configured backend.
// For the database backends, records from FixturesFile are seeded on open,
// keeping rows that already exist.
func BackendRepositoryFactory(ctx context.Context, cfg BackendConfig) (RepositoryFactory, error) {
	switch cfg.Backend {
	case BackendMemory:
		return MemoryUserRepositoryFactory(cfg.MemoryUserRepositoryConfig), nil
	case BackendSQLite:
		return seedingFactory(ctx, SQLiteUserRepositoryFactory(cfg.SQLiteUserRepositoryConfig), cfg.FixturesFile), nil
	case BackendPostgres:
		return seedingFactory(ctx, PostgresUserRepositoryFactory(cfg.PostgresUserRepositoryConfig), cfg.FixturesFile), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func seedingFactory(ctx context.Context, factory RepositoryFactory, fixturesFile string) RepositoryFactory {
	if fixturesFile == "" {
		return factory
	}

	return func() (Repository, error) {
		log := logging.GetLogger("repo.user.backend").With(logging.Group("fixtures", "path", fixturesFile))

		records, err := LoadUserFixtures(fixturesFile)
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}

		repo, err := factory()
		if err != nil {
			return nil, err
		}

		seeder, ok := repo.(Seeder)
		if !ok {
			repo.Close()

			return nil, fmt.Errorf("%w: repository cannot be seeded", ErrUnknownBackend)
		}

		created, err := Seed(ctx, seeder, records)
		if err != nil {
			repo.Close()

			return nil, fmt.Errorf("seed users: %w", err)
		}

		log.InfoContext(ctx, "users seeded", "created", created, "total", len(records))

		return repo, nil
	}
}
