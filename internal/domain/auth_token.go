package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is matched by every failure that must surface as 401 on a protected route.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoAuthToken is returned when a bearer token is required but not provided.
	ErrNoAuthToken = fmt.Errorf("%w: no auth token", ErrUnauthorized)
	// ErrTokenMalformed is returned for tokens with a broken structure, encoding,
	// unsupported algorithm or missing required claims.
	ErrTokenMalformed = fmt.Errorf("%w: auth token malformed", ErrUnauthorized)
	// ErrTokenSignatureInvalid is returned when a token's signature does not match the signing key.
	ErrTokenSignatureInvalid = fmt.Errorf("%w: auth token signature invalid", ErrUnauthorized)
	// ErrTokenExpired is returned when a correctly signed token is past its expiry.
	ErrTokenExpired = fmt.Errorf("%w: auth token expired", ErrUnauthorized)
	// ErrSubjectNotFound is returned when a valid token names a user that no longer exists.
	ErrSubjectNotFound = fmt.Errorf("%w: token subject not found", ErrUnauthorized)
	// ErrSubjectDisabled is returned when a valid token names a disabled user.
	ErrSubjectDisabled = fmt.Errorf("%w: token subject disabled", ErrUnauthorized)
)

// IsAuthFailure reports whether err is a per-request authentication failure
// as opposed to an infrastructure error.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidCredentials)
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// AuthToken is the verified content of a bearer token.
type AuthToken struct {
	Subject   string    // Username the token was issued to
	ID        string    // Random token identifier, for log correlation only
	IssuedAt  time.Time // Time the token was minted
	ExpiresAt time.Time // Absolute expiry
}

// TokenResponse is the body returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
