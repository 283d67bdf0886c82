package authsvc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkrupp/tokengate/internal/domain"
)

var (
	// ErrInvalidTokenConfig is returned when a TokenAuthority cannot be built from its config.
	ErrInvalidTokenConfig = errors.New("invalid token config")
	// ErrEmptySubject is returned when a token is requested for an empty subject.
	ErrEmptySubject = errors.New("empty token subject")
)

// TokenConfig is the process-wide, immutable token configuration.
type TokenConfig struct {
	// SigningKey is the HMAC secret
	SigningKey []byte

	// Algorithm is the JWS algorithm identifier (HS256, HS384 or HS512)
	Algorithm string

	// DefaultTTL is used by Issue when no positive TTL is given
	DefaultTTL time.Duration
}

// TokenAuthority mints and verifies stateless HMAC-signed JWTs.
// It records nothing about issued tokens. All methods are safe for concurrent use.
type TokenAuthority struct {
	key    []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenAuthority validates cfg and creates a TokenAuthority using the wall clock.
func NewTokenAuthority(cfg TokenConfig) (*TokenAuthority, error) {
	return NewTokenAuthorityWithClock(cfg, time.Now)
}

// NewTokenAuthorityWithClock is NewTokenAuthority with an explicit time source.
func NewTokenAuthorityWithClock(cfg TokenConfig, now func() time.Time) (*TokenAuthority, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("%w: empty signing key", ErrInvalidTokenConfig)
	}

	if cfg.DefaultTTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidTokenConfig)
	}

	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidTokenConfig, cfg.Algorithm)
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &TokenAuthority{
		key:    key,
		method: method,
		ttl:    cfg.DefaultTTL,
		now:    now,
	}, nil
}

// Algorithm returns the JWS algorithm identifier used for signing.
func (a *TokenAuthority) Algorithm() string {
	return a.method.Alg()
}

// Issue signs a token for subject that expires after ttl.
// A non-positive ttl selects the configured default.
func (a *TokenAuthority) Issue(subject string, ttl time.Duration) (string, domain.AuthToken, error) {
	if subject == "" {
		return "", domain.AuthToken{}, ErrEmptySubject
	}

	if ttl <= 0 {
		ttl = a.ttl
	}

	tokenID, err := uuid.NewRandom()
	if err != nil {
		return "", domain.AuthToken{}, fmt.Errorf("new token id: %w", err)
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        tokenID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(a.method, claims).SignedString(a.key)
	if err != nil {
		return "", domain.AuthToken{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, tokenFromClaims(&claims), nil
}

// Verify checks the token's signature, then its expiry, then extracts the subject.
// Base64 segments are decoded strictly, so unused trailing bits must be zero.
// Failures wrap exactly one of domain.ErrTokenMalformed, domain.ErrTokenSignatureInvalid
// or domain.ErrTokenExpired. Verify has no side effects.
func (a *TokenAuthority) Verify(tokenString string) (domain.AuthToken, error) {
	if tokenString == "" {
		return domain.AuthToken{}, domain.ErrTokenMalformed
	}

	claims := &jwt.RegisteredClaims{}

	parser := jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(a.now),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, a.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && a.undecodableSignature(parser, tokenString) {
			return domain.AuthToken{}, errors.Join(domain.ErrTokenSignatureInvalid, err)
		}

		return domain.AuthToken{}, classifyParseError(err)
	}

	if claims.Subject == "" {
		return domain.AuthToken{}, fmt.Errorf("%w: missing subject", domain.ErrTokenMalformed)
	}

	return tokenFromClaims(claims), nil
}

// keyFunc only hands out the key for the configured algorithm, so a token
// claiming any other algorithm (including "none") is never verified.
func (a *TokenAuthority) keyFunc(token *jwt.Token) (any, error) {
	if token.Method == nil || token.Method.Alg() != a.method.Alg() {
		return nil, fmt.Errorf("%w: unexpected algorithm %v", domain.ErrTokenMalformed, token.Header["alg"])
	}

	return a.key, nil
}

// undecodableSignature reports whether the header and claims of tokenString are
// well formed for the configured algorithm while everything after the second dot
// is not a strict base64url signature. The parser calls that malformed, but the
// damage is confined to the signature segment.
func (a *TokenAuthority) undecodableSignature(parser *jwt.Parser, tokenString string) bool {
	parts := strings.SplitN(tokenString, ".", 3)
	if len(parts) != 3 {
		return false
	}

	token, _, err := parser.ParseUnverified(parts[0]+"."+parts[1]+".", &jwt.RegisteredClaims{})
	if err != nil || token.Method == nil || token.Method.Alg() != a.method.Alg() {
		return false
	}

	if strings.Contains(parts[2], ".") {
		return true
	}

	_, err = parser.DecodeSegment(parts[2])

	return err != nil
}

// classifyParseError maps jwt parser errors onto the domain taxonomy.
// The parser verifies the signature before it validates claims, so an expired
// verdict is only reachable for correctly signed tokens.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.Join(domain.ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.Join(domain.ErrTokenExpired, err)
	default:
		return errors.Join(domain.ErrTokenMalformed, err)
	}
}

func tokenFromClaims(claims *jwt.RegisteredClaims) domain.AuthToken {
	token := domain.AuthToken{
		Subject: claims.Subject,
		ID:      claims.ID,
	}

	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}

	if claims.ExpiresAt != nil {
		token.ExpiresAt = claims.ExpiresAt.Time
	}

	return token
}
