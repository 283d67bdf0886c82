package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mkrupp/tokengate/internal/domain"
	"github.com/mkrupp/tokengate/internal/infra/logging"
)

const userColumns = "username, display_name, email, password_hash, disabled"

// sqlDialect holds what differs between the database/sql backends.
type sqlDialect struct {
	// placeholder renders the n-th (1-based) bind parameter
	placeholder func(n int) string
	// schema creates the users table if it does not exist
	schema string
	// isUniqueViolation reports whether err is a duplicate key error
	isUniqueViolation func(err error) bool
}

// sqlUserStore implements the users table on any database/sql driver.
type sqlUserStore struct {
	db  *sql.DB
	log logging.Logger

	selectQuery string
	insertQuery string
	isDuplicate func(err error) bool
}

func newSQLUserStore(ctx context.Context, db *sql.DB, dialect sqlDialect, log logging.Logger) (*sqlUserStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.ExecContext(ctx, dialect.schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	params := make([]string, strings.Count(userColumns, ",")+1)
	for i := range params {
		params[i] = dialect.placeholder(i + 1)
	}

	return &sqlUserStore{
		db:          db,
		log:         log,
		selectQuery: "SELECT " + userColumns + " FROM users WHERE username = " + dialect.placeholder(1),
		insertQuery: "INSERT INTO users (" + userColumns + ") VALUES (" + strings.Join(params, ", ") + ")",
		isDuplicate: dialect.isUniqueViolation,
	}, nil
}

func (s *sqlUserStore) GetUserByUsername(ctx context.Context, username string) (domain.UserRecord, bool, error) {
	var user domain.UserRecord

	err := s.db.QueryRowContext(ctx, s.selectQuery, username).
		Scan(&user.Username, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Disabled)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.UserRecord{}, false, nil
	case err != nil:
		return domain.UserRecord{}, false, fmt.Errorf("query user: %w", err)
	}

	return user, true, nil
}

func (s *sqlUserStore) SamplePasswordHash(ctx context.Context) (string, bool, error) {
	var hash string

	err := s.db.QueryRowContext(ctx, "SELECT password_hash FROM users ORDER BY id LIMIT 1").Scan(&hash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("sample password hash: %w", err)
	}

	return hash, true, nil
}

func (s *sqlUserStore) CreateUser(ctx context.Context, user domain.UserRecord) error {
	_, err := s.db.ExecContext(ctx, s.insertQuery,
		user.Username,
		user.DisplayName,
		user.Email,
		user.PasswordHash,
		user.Disabled,
	)
	if err != nil {
		if s.isDuplicate(err) {
			err = errors.Join(domain.ErrUserAlreadyExists, err)
		}

		return fmt.Errorf("insert user: %w", err)
	}

	s.log.DebugContext(ctx, "user created", logging.Group("user", "username", user.Username))

	return nil
}

func (s *sqlUserStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

func questionMark(int) string { return "?" }

func dollarN(n int) string { return "$" + strconv.Itoa(n) }
