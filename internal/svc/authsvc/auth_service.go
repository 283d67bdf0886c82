package authsvc

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mkrupp/tokengate/internal/domain"
	"github.com/mkrupp/tokengate/internal/infra/logging"
	"github.com/mkrupp/tokengate/internal/repo/user"
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SigningKey is the inline HMAC secret. When empty, SigningKeyFile is used
	SigningKey string `env:"SIGNING_KEY" default:""`

	// SigningKeyFile is the path to the HMAC secret, generated on first start if missing
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/authgw.key"`

	// Algorithm is the JWS signing algorithm
	Algorithm string `env:"ALGORITHM" default:"HS256"`

	// TokenTTL is the validity duration of issued tokens
	TokenTTL time.Duration `env:"TOKEN_TTL" default:"30m"`

	// MaxConcurrentHashes bounds simultaneous password hash computations; 0 means one per CPU
	MaxConcurrentHashes int `env:"MAX_CONCURRENT_HASHES" default:"0"`

	Hasher HasherConfig
}

// AuthService composes the credential store, password hasher and token authority
// into the login and authorization flows.
type AuthService struct {
	UserRepo user.Repository
	Tokens   *TokenAuthority
	Hasher   *PasswordHasher
	Log      logging.Logger

	hashSlots *semaphore.Weighted
	decoys    *decoyHashes
}

// NewAuthService creates a new AuthService with the given user repository factory and configuration.
// Returns an error if the signing key cannot be loaded or the user repository cannot be created.
func NewAuthService(repoFactory user.RepositoryFactory, cfg AuthConfig) (*AuthService, error) {
	signingKey, err := GetSigningKey(cfg.SigningKey, cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get signing key: %w", err)
	}

	tokens, err := NewTokenAuthority(TokenConfig{
		SigningKey: signingKey,
		Algorithm:  cfg.Algorithm,
		DefaultTTL: cfg.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("new token authority: %w", err)
	}

	hasher, err := NewPasswordHasher(cfg.Hasher)
	if err != nil {
		return nil, fmt.Errorf("new password hasher: %w", err)
	}

	userRepo, err := repoFactory()
	if err != nil {
		return nil, fmt.Errorf("new user repo: %w", err)
	}

	svc, err := NewAuthServiceWith(userRepo, tokens, hasher, cfg.MaxConcurrentHashes)
	if err != nil {
		userRepo.Close()

		return nil, err
	}

	return svc, nil
}

// NewAuthServiceWith assembles an AuthService from already constructed parts.
// It computes the decoy hash used to equalize login timing for unknown usernames,
// shaped after a stored record when userRepo is a user.PasswordHashSampler.
func NewAuthServiceWith(
	userRepo user.Repository,
	tokens *TokenAuthority,
	hasher *PasswordHasher,
	maxConcurrentHashes int,
) (*AuthService, error) {
	if maxConcurrentHashes <= 0 {
		maxConcurrentHashes = runtime.NumCPU()
	}

	decoys, err := newDecoyHashes(hasher)
	if err != nil {
		return nil, err
	}

	if sampler, ok := userRepo.(user.PasswordHashSampler); ok {
		sample, found, err := sampler.SamplePasswordHash(context.Background())
		if err != nil {
			return nil, fmt.Errorf("sample stored hash: %w", err)
		}

		if found {
			decoys.observe(sample)
		}
	}

	svc := &AuthService{
		UserRepo:  userRepo,
		Tokens:    tokens,
		Hasher:    hasher,
		Log:       logging.GetLogger("svc.authsvc.auth_service"),
		hashSlots: semaphore.NewWeighted(int64(maxConcurrentHashes)),
		decoys:    decoys,
	}

	// Build the decoy for the sampled shape now rather than on the first unknown login
	if _, err := svc.decoyHash(context.Background()); err != nil {
		return nil, err
	}

	return svc, nil
}

// Login authenticates a user and issues a signed bearer token.
// Unknown usernames, wrong passwords and disabled accounts all return
// domain.ErrInvalidCredentials, and all three cost one password hash of the
// same scheme and parameters.
func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (_ domain.TokenResponse, err error) {
	log := s.Log.With(logging.Group("user", "username", creds.Username))

	defer func() {
		switch {
		case err == nil:
			log.DebugContext(ctx, "login successful")
		case domain.IsAuthFailure(err):
			log.WarnContext(ctx, "login rejected", "error", err)
		default:
			log.ErrorContext(ctx, "login failed", "error", err)
		}
	}()

	record, found, err := s.UserRepo.GetUserByUsername(ctx, creds.Username)
	if err != nil {
		return domain.TokenResponse{}, fmt.Errorf("get user: %w", err)
	}

	var storedHash string
	if found {
		storedHash = record.PasswordHash
		s.decoys.observe(storedHash)
	} else if storedHash, err = s.decoyHash(ctx); err != nil {
		return domain.TokenResponse{}, err
	}

	match, err := s.verifyPassword(ctx, creds.Password, storedHash)
	if err != nil {
		return domain.TokenResponse{}, err
	}

	if !found || !match || record.Disabled {
		return domain.TokenResponse{}, domain.ErrInvalidCredentials
	}

	tokenString, token, err := s.Tokens.Issue(record.Username, 0)
	if err != nil {
		return domain.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	log = log.With(logging.Group("token",
		"id", token.ID,
		"exp", token.ExpiresAt.UTC().Format(time.RFC3339),
		"iat", token.IssuedAt.UTC().Format(time.RFC3339),
	))

	return domain.TokenResponse{
		AccessToken: tokenString,
		TokenType:   domain.TokenTypeBearer,
	}, nil
}

// Authorize verifies a bearer token and re-resolves its subject against the store.
// A deleted or disabled user is rejected even while their token is otherwise valid.
func (s *AuthService) Authorize(ctx context.Context, tokenString string) (_ domain.Principal, err error) {
	log := s.Log

	defer func() {
		switch {
		case err == nil:
			log.DebugContext(ctx, "token authorized")
		case domain.IsAuthFailure(err):
			log.WarnContext(ctx, "token rejected", "error", err)
		default:
			log.ErrorContext(ctx, "authorize failed", "error", err)
		}
	}()

	token, err := s.Tokens.Verify(tokenString)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("verify token: %w", err)
	}

	log = log.With(logging.Group("token",
		"id", token.ID,
		"sub", token.Subject,
		"exp", token.ExpiresAt.UTC().Format(time.RFC3339),
	))

	record, found, err := s.UserRepo.GetUserByUsername(ctx, token.Subject)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("get user: %w", err)
	}

	if !found {
		return domain.Principal{}, domain.ErrSubjectNotFound
	}

	if record.Disabled {
		return domain.Principal{}, domain.ErrSubjectDisabled
	}

	return record.Principal(), nil
}

// HashPassword produces a new storable hash, bounded by the same concurrency limit as logins.
func (s *AuthService) HashPassword(ctx context.Context, plaintext string) (string, error) {
	if err := s.hashSlots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	defer s.hashSlots.Release(1)

	return s.Hasher.HashPassword(plaintext)
}

// decoyHash returns the hash an unknown username is verified against. It has the
// scheme and cost of the stored records seen last.
func (s *AuthService) decoyHash(ctx context.Context) (string, error) {
	if err := s.hashSlots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	defer s.hashSlots.Release(1)

	return s.decoys.current()
}

func (s *AuthService) verifyPassword(ctx context.Context, plaintext, storedHash string) (bool, error) {
	if err := s.hashSlots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("acquire hash slot: %w", err)
	}
	defer s.hashSlots.Release(1)

	return s.Hasher.VerifyPassword(plaintext, storedHash), nil
}

// Close releases resources held by the service, such as database connections.
// Returns an error if cleanup fails.
func (s *AuthService) Close() error {
	if err := s.UserRepo.Close(); err != nil {
		return fmt.Errorf("close user repo: %w", err)
	}

	return nil
}
