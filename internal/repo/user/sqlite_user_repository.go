package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/tokengate/internal/domain"
	"github.com/mkrupp/tokengate/internal/infra/logging"
)

// SQLiteUserRepositoryConfig holds configuration for the SQLite user repository.
type SQLiteUserRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/authgw.db"`

	// BusyTimeout is how long a statement waits on a locked database
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" default:"5s"`
}

// SQLiteUserRepository implements Repository on a local SQLite file through modernc.org/sqlite.
type SQLiteUserRepository struct {
	*sqlUserStore

	// SQLite allows a single writer at a time
	writeLock sync.Mutex
}

var (
	_ Repository          = (*SQLiteUserRepository)(nil)
	_ Seeder              = (*SQLiteUserRepository)(nil)
	_ PasswordHashSampler = (*SQLiteUserRepository)(nil)
)

//nolint:gochecknoglobals
var sqliteDialect = sqlDialect{
	placeholder: questionMark,
	schema: `
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT    UNIQUE NOT NULL,
			display_name  TEXT    NOT NULL DEFAULT '',
			email         TEXT    NOT NULL DEFAULT '',
			password_hash TEXT    NOT NULL,
			disabled      INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
	isUniqueViolation: func(err error) bool {
		var liteErr *sqlite.Error
		if !errors.As(err, &liteErr) {
			return false
		}

		code := liteErr.Code()

		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	},
}

// SQLiteUserRepositoryFactory creates a factory function that returns a new SQLiteUserRepository.
func SQLiteUserRepositoryFactory(cfg SQLiteUserRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLiteUserRepository(cfg)
	}
}

// NewSQLiteUserRepository opens the database file and creates the schema if needed.
// The file and its directory are created on demand.
func NewSQLiteUserRepository(cfg SQLiteUserRepositoryConfig) (*SQLiteUserRepository, error) {
	log := logging.GetLogger("repo.user.sqlite").With(logging.Group("db", "path", cfg.DatabasePath))

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	pragmas := url.Values{}
	pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	pragmas.Add("_pragma", "journal_mode(WAL)")

	db, err := sql.Open("sqlite", cfg.DatabasePath+"?"+pragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := newSQLUserStore(context.Background(), db, sqliteDialect, log)
	if err != nil {
		db.Close()

		return nil, err
	}

	log.Debug("user repository opened")

	return &SQLiteUserRepository{sqlUserStore: store}, nil
}

// CreateUser implements Seeder.CreateUser, serializing writers.
func (r *SQLiteUserRepository) CreateUser(ctx context.Context, user domain.UserRecord) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	return r.sqlUserStore.CreateUser(ctx, user)
}
