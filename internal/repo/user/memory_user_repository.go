package user

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mkrupp/tokengate/internal/domain"
)

// DemoPasswordHash is the stored hash of the demo user's password "secret".
// It uses the pbkdf2-sha256 format of the deployment this gateway replaces.
const DemoPasswordHash = "$pbkdf2-sha256$29000$uFcqpdR6730PoRTivJcy5g$Gk0WpN83X.YnqIHW1JS.yhIIEMCX9vNz9E/9MhlJ/fQ"

// DemoUser is the record served by the memory repository when no fixtures are configured.
//
//nolint:gochecknoglobals
var DemoUser = domain.UserRecord{
	Username:     "johndoe",
	DisplayName:  "John Doe",
	Email:        "johndoe@example.com",
	PasswordHash: DemoPasswordHash,
	Disabled:     false,
}

// MemoryUserRepositoryConfig holds configuration for the in-memory user repository.
type MemoryUserRepositoryConfig struct {
	// FixturesFile is the path to a JSON array of user records. Empty serves DemoUser.
	FixturesFile string `env:"FIXTURES_FILE" default:""`
}

// MemoryUserRepository implements Repository over a map that is never written
// after construction, so concurrent lookups need no locking.
type MemoryUserRepository struct {
	users  map[string]domain.UserRecord
	sample string
}

var (
	_ Repository          = (*MemoryUserRepository)(nil)
	_ PasswordHashSampler = (*MemoryUserRepository)(nil)
)

// MemoryUserRepositoryFactory creates a factory function that returns a new MemoryUserRepository
// seeded from the configured fixtures file, or with DemoUser if none is set.
func MemoryUserRepositoryFactory(cfg MemoryUserRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		if cfg.FixturesFile == "" {
			return NewMemoryUserRepository(DemoUser)
		}

		records, err := LoadUserFixtures(cfg.FixturesFile)
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}

		return NewMemoryUserRepository(records...)
	}
}

// NewMemoryUserRepository creates a repository holding the given records.
// Returns domain.ErrUserAlreadyExists if two records share a username.
func NewMemoryUserRepository(records ...domain.UserRecord) (*MemoryUserRepository, error) {
	users := make(map[string]domain.UserRecord, len(records))

	var sample string
	if len(records) > 0 {
		sample = records[0].PasswordHash
	}

	for _, record := range records {
		if _, exists := users[record.Username]; exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrUserAlreadyExists, record.Username)
		}

		users[record.Username] = record
	}

	return &MemoryUserRepository{users: users, sample: sample}, nil
}

// LoadUserFixtures reads a JSON array of user records from path.
func LoadUserFixtures(path string) ([]domain.UserRecord, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}

	var records []domain.UserRecord
	if err := json.Unmarshal(buf, &records); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	return records, nil
}

// GetUserByUsername implements Repository.GetUserByUsername.
func (r *MemoryUserRepository) GetUserByUsername(_ context.Context, username string) (domain.UserRecord, bool, error) {
	user, ok := r.users[username]

	return user, ok, nil
}

// SamplePasswordHash implements PasswordHashSampler with the first record given.
func (r *MemoryUserRepository) SamplePasswordHash(context.Context) (string, bool, error) {
	return r.sample, len(r.users) > 0, nil
}

// Close implements Repository.Close. There is nothing to release.
func (r *MemoryUserRepository) Close() error {
	return nil
}
