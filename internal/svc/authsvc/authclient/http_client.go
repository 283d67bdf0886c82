package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mkrupp/tokengate/internal/domain"
	context_ "github.com/mkrupp/tokengate/internal/infra/context"
	"github.com/mkrupp/tokengate/internal/infra/logging"
)

const (
	TraceIDHeader       = "X-Request-ID"
	AuthorizationHeader = "Authorization"
)

// ErrUnexpectedStatus is returned when the gateway answers with a status the client does not handle.
var ErrUnexpectedStatus = errors.New("unexpected gateway status")

// HTTPClientConfig holds configuration for the HTTP auth client.
type HTTPClientConfig struct {
	// GatewayURL is the base URL of the auth gateway
	GatewayURL string `env:"GATEWAY_URL" default:"http://localhost:8080"`
}

// HTTPClient implements AuthClient against the gateway's HTTP endpoints.
type HTTPClient struct {
	httpClient *http.Client
	log        logging.Logger
	cfg        HTTPClientConfig
}

var _ AuthClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTPClient with the given configuration.
// If httpClient is nil, http.DefaultClient will be used.
func NewHTTPClient(
	cfg HTTPClientConfig,
	httpClient *http.Client,
) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")

	return &HTTPClient{
		httpClient: httpClient,
		log:        logging.GetLogger("svc.authsvc.http_client"),
		cfg:        cfg,
	}
}

// Login implements AuthClient.Login by posting the credentials as a form to /token.
func (ht *HTTPClient) Login(ctx context.Context, creds domain.Credentials) (domain.TokenResponse, error) {
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
	}

	req, err := ht.newRequest(ctx, http.MethodPost, "/token", strings.NewReader(form.Encode()))
	if err != nil {
		return domain.TokenResponse{}, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token domain.TokenResponse

	switch err := ht.do(req, &token); {
	case errors.Is(err, domain.ErrUnauthorized):
		return domain.TokenResponse{}, domain.ErrInvalidCredentials
	case err != nil:
		return domain.TokenResponse{}, err
	}

	return token, nil
}

// Authorize implements AuthClient.Authorize by fetching /users/me with the token.
// It satisfies the authorizing middleware's Authorizer, so a downstream service
// can protect its own routes with the gateway.
func (ht *HTTPClient) Authorize(ctx context.Context, token string) (domain.Principal, error) {
	req, err := ht.newRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return domain.Principal{}, err
	}

	req.Header.Set(AuthorizationHeader, "Bearer "+token)

	var principal domain.Principal
	if err := ht.do(req, &principal); err != nil {
		return domain.Principal{}, err
	}

	return principal, nil
}

func (ht *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, ht.cfg.GatewayURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		req.Header.Set(TraceIDHeader, traceID)
	}

	return req, nil
}

func (ht *HTTPClient) do(req *http.Request, v any) error {
	log := ht.log.With(logging.Group("http", "method", req.Method, "url", req.URL.String()))

	resp, err := ht.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(req.Method), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		log.DebugContext(req.Context(), "gateway rejected request")

		return fmt.Errorf("%w: gateway answered %d", domain.ErrUnauthorized, resp.StatusCode)
	default:
		log.WarnContext(req.Context(), "unexpected gateway status", "status", resp.StatusCode)

		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
