package user_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/tokengate/internal/domain"
	"github.com/mkrupp/tokengate/internal/repo/user"
)

func newSQLiteRepo(t *testing.T) *user.SQLiteUserRepository {
	t.Helper()

	repo, err := user.NewSQLiteUserRepository(user.SQLiteUserRepositoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "users.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestSQLiteUserRepository_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newSQLiteRepo(t)

	disabled := domain.UserRecord{
		Username:     "alice",
		DisplayName:  "Alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$hash",
		Disabled:     true,
	}

	require.NoError(t, repo.CreateUser(ctx, user.DemoUser))
	require.NoError(t, repo.CreateUser(ctx, disabled))

	got, ok, err := repo.GetUserByUsername(ctx, "johndoe")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, user.DemoUser, got)

	got, ok, err = repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, disabled, got)

	_, ok, err = repo.GetUserByUsername(ctx, "JOHNDOE")
	require.NoError(t, err)
	assert.False(t, ok, "lookup must be case sensitive")

	_, ok, err = repo.GetUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteUserRepository_CreateDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.CreateUser(ctx, user.DemoUser))

	err := repo.CreateUser(ctx, user.DemoUser)
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newSQLiteRepo(t)

	records := []domain.UserRecord{
		user.DemoUser,
		{Username: "bob", DisplayName: "Bob", PasswordHash: "h"},
	}

	created, err := user.Seed(ctx, repo, records)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = user.Seed(ctx, repo, records)
	require.NoError(t, err)
	assert.Equal(t, 0, created, "existing users are skipped")
}

func TestSQLiteUserRepositoryFactory_CreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "dir", "users.db")

	repo, err := user.SQLiteUserRepositoryFactory(user.SQLiteUserRepositoryConfig{DatabasePath: path})()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	assert.FileExists(t, path)
}

func TestSQLiteUserRepositoryFactory_BadPath(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := user.SQLiteUserRepositoryFactory(user.SQLiteUserRepositoryConfig{
		DatabasePath: filepath.Join(blocker, "users.db"),
	})()
	assert.Error(t, err)
}

func TestSQLiteUserRepository_SamplePasswordHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newSQLiteRepo(t)

	_, found, err := repo.SamplePasswordHash(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.CreateUser(ctx, user.DemoUser))
	require.NoError(t, repo.CreateUser(ctx, domain.UserRecord{Username: "alice", PasswordHash: "other"}))

	hash, found, err := repo.SamplePasswordHash(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, user.DemoPasswordHash, hash, "oldest record")
}
