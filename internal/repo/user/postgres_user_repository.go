package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/mkrupp/tokengate/internal/infra/logging"
)

const pgUniqueViolation = "23505"

// ErrNoDatabaseURL is returned when the postgres backend is selected without a connection string.
var ErrNoDatabaseURL = errors.New("no database url")

// PostgresUserRepositoryConfig holds configuration for the PostgreSQL user repository.
type PostgresUserRepositoryConfig struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string `env:"DATABASE_URL" default:""`

	// MaxOpenConns caps the connection pool size
	MaxOpenConns int `env:"MAX_OPEN_CONNS" default:"10"`
}

// PostgresUserRepository implements Repository on PostgreSQL through the pgx driver.
type PostgresUserRepository struct {
	*sqlUserStore
}

var (
	_ Repository          = (*PostgresUserRepository)(nil)
	_ Seeder              = (*PostgresUserRepository)(nil)
	_ PasswordHashSampler = (*PostgresUserRepository)(nil)
)

//nolint:gochecknoglobals
var postgresDialect = sqlDialect{
	placeholder: dollarN,
	schema: `
		CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL   PRIMARY KEY,
			username      TEXT        UNIQUE NOT NULL,
			display_name  TEXT        NOT NULL DEFAULT '',
			email         TEXT        NOT NULL DEFAULT '',
			password_hash TEXT        NOT NULL,
			disabled      BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	isUniqueViolation: func(err error) bool {
		var pgErr *pgconn.PgError

		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	},
}

// PostgresUserRepositoryFactory creates a factory function that returns a new PostgresUserRepository.
func PostgresUserRepositoryFactory(cfg PostgresUserRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("open db: %w", ErrNoDatabaseURL)
		}

		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}

		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		repo, err := NewPostgresUserRepository(context.Background(), db)
		if err != nil {
			db.Close()

			return nil, err
		}

		return repo, nil
	}
}

// NewPostgresUserRepository wraps an open database handle and creates the schema if needed.
// The repository takes ownership of db and closes it on Close.
func NewPostgresUserRepository(ctx context.Context, db *sql.DB) (*PostgresUserRepository, error) {
	store, err := newSQLUserStore(ctx, db, postgresDialect, logging.GetLogger("repo.user.postgres"))
	if err != nil {
		return nil, err
	}

	return &PostgresUserRepository{sqlUserStore: store}, nil
}
