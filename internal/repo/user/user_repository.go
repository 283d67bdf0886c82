package user

import (
	"context"

	"github.com/mkrupp/tokengate/internal/domain"
)

// Repository defines the read side of user data persistence.
type Repository interface {
	// GetUserByUsername retrieves a user by their exact, case-sensitive username.
	// Returns the record and true if found, or a zero record and false if not found.
	// Returns an error only if the lookup itself fails.
	GetUserByUsername(ctx context.Context, username string) (domain.UserRecord, bool, error)

	// Close releases any resources held by the repository.
	// Returns an error if cleanup fails.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func() (Repository, error)

// PasswordHashSampler is implemented by repositories that can hand out the stored
// hash of one of their records. The auth service shapes its decoy hash after it.
type PasswordHashSampler interface {
	// SamplePasswordHash returns the hash of the oldest record, and false for an empty store.
	SamplePasswordHash(ctx context.Context) (string, bool, error)
}
