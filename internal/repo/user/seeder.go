package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/tokengate/internal/domain"
)

// Seeder is implemented by repositories that can be populated with records.
// It is not part of Repository: the gateway itself never writes users.
type Seeder interface {
	// CreateUser inserts a record.
	// Returns domain.ErrUserAlreadyExists if the username is already taken.
	CreateUser(ctx context.Context, user domain.UserRecord) error
}

// Seed inserts records into the repository, leaving existing usernames untouched.
// Returns the number of records inserted.
func Seed(ctx context.Context, seeder Seeder, records []domain.UserRecord) (int, error) {
	var created int

	for _, record := range records {
		if err := seeder.CreateUser(ctx, record); err != nil {
			if errors.Is(err, domain.ErrUserAlreadyExists) {
				continue
			}

			return created, fmt.Errorf("seed %s: %w", record.Username, err)
		}

		created++
	}

	return created, nil
}
