package authclient

import (
	"context"

	"github.com/mkrupp/tokengate/internal/domain"
)

// AuthClient defines the client side of the gateway for downstream services.
type AuthClient interface {
	// Login exchanges credentials for a bearer token.
	// Returns domain.ErrInvalidCredentials if the gateway rejects them.
	Login(ctx context.Context, creds domain.Credentials) (domain.TokenResponse, error)

	// Authorize resolves a bearer token to its principal.
	// Returns an error matching domain.ErrUnauthorized if the gateway rejects the token.
	Authorize(ctx context.Context, token string) (domain.Principal, error)
}
