package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mkrupp/tokengate/internal/domain"
	context_ "github.com/mkrupp/tokengate/internal/infra/context"
	"github.com/mkrupp/tokengate/internal/infra/logging"
)

// CredentialsErrorDetail is the body detail of every 401 on a protected route.
const CredentialsErrorDetail = "Could not validate credentials"

// Authorizer resolves a bearer token to the principal it was issued to.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (domain.Principal, error)
}

// AuthorizingMiddleware creates middleware that validates bearer tokens.
// Requests without a valid token in the Authorization header are rejected with
// 401 and a Bearer challenge. Infrastructure failures while authorizing yield 500.
// On success, the principal is added to the request context.
func AuthorizingMiddleware(
	next http.Handler,
	authorizer Authorizer,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			log.WarnContext(r.Context(), "no token provided", "error", err)
			WriteUnauthorized(w, CredentialsErrorDetail)

			return
		}

		principal, err := authorizer.Authorize(r.Context(), token)
		if err != nil {
			if domain.IsAuthFailure(err) {
				WriteUnauthorized(w, CredentialsErrorDetail)
			} else {
				log.ErrorContext(r.Context(), "authorize failed", "error", err)
				WriteDetail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}

			return
		}

		next.ServeHTTP(w, r.WithContext(context_.WithPrincipal(r.Context(), principal)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrNoAuthToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.Join(domain.ErrNoAuthToken, errNotBearer)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrNoAuthToken
	}

	return token, nil
}

var errNotBearer = errors.New("authorization scheme is not bearer")
