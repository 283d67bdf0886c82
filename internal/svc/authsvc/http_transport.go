package authsvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mkrupp/tokengate/internal/domain"
	context_ "github.com/mkrupp/tokengate/internal/infra/context"
	"github.com/mkrupp/tokengate/internal/infra/logging"
	http_ "github.com/mkrupp/tokengate/internal/infra/transport/http"
)

// LoginErrorDetail is the body detail of a rejected login.
const LoginErrorDetail = "Incorrect username or password"

var (
	// ErrNoUsername is returned when the username is missing from the request.
	ErrNoUsername = errors.New("no username")
	// ErrNoPassword is returned when the password is missing from the request.
	ErrNoPassword = errors.New("no password")
	// ErrNoPrincipal is returned when a protected handler runs without an authorized principal.
	ErrNoPrincipal = errors.New("no principal in context")
)

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// HTTPTransport handles HTTP requests for the authentication gateway.
// It provides the token endpoint and the protected resource endpoints.
type HTTPTransport struct {
	authSvc *AuthService
	log     logging.Logger
	cfg     HTTPTransportConfig
	mux     *http.ServeMux
}

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
// It requires an AuthService for handling authentication operations.
func NewHTTPTransport(
	authSvc *AuthService,
	cfg HTTPTransportConfig,
) *HTTPTransport {
	ht := &HTTPTransport{
		authSvc: authSvc,
		log:     logging.GetLogger("svc.authsvc.http_transport"),
		cfg:     cfg,
		mux:     http.NewServeMux(),
	}

	protect := func(h http.HandlerFunc) http.Handler {
		return http_.AuthorizingMiddleware(h, authSvc, ht.log)
	}

	ht.mux.HandleFunc("POST /token", ht.HandleToken)
	ht.mux.HandleFunc("GET /health", ht.HandleHealth)
	ht.mux.Handle("GET /{$}", protect(ht.HandleRoot))
	ht.mux.Handle("GET /test", protect(ht.HandleTest))
	ht.mux.Handle("GET /users/me", protect(ht.HandleMe))

	return ht
}

// ServeHTTP implements http.Handler and dispatches to the gateway endpoints:
// - POST /token: Exchange username and password for a bearer token
// - GET /: Greet the authorized user
// - GET /test: Protected test message
// - GET /users/me: Profile of the authorized user
// - GET /health: Liveness check.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// HandleToken processes login requests.
// Expects form parameters in the request body: username, password.
// Returns a bearer token on successful login.
func (ht *HTTPTransport) HandleToken(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleToken(w, r)
}

func (ht *HTTPTransport) handleToken(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		switch {
		case err == nil:
			log.DebugContext(ctx, "token issued")
		case domain.IsAuthFailure(err):
			log.InfoContext(ctx, "token request rejected", "error", err)
		default:
			log.ErrorContext(ctx, "token request failed", "error", err)
		}
	}(r.Context())

	// Parse form
	if err := r.ParseForm(); err != nil {
		http_.WriteDetail(w, http.StatusBadRequest, "invalid form body")

		return fmt.Errorf("parse form: %w", err)
	}

	creds := domain.Credentials{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}

	if creds.Username == "" {
		http_.WriteDetail(w, http.StatusBadRequest, "username is required")

		return ErrNoUsername
	}

	log = log.With("credentials", creds)

	if creds.Password == "" {
		http_.WriteDetail(w, http.StatusBadRequest, "password is required")

		return ErrNoPassword
	}

	// Login user
	resp, err := ht.authSvc.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			http_.WriteUnauthorized(w, LoginErrorDetail)
		} else {
			http_.WriteDetail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}

		return fmt.Errorf("login user: %w", err)
	}

	// Return token
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := http_.WriteJSON(w, http.StatusOK, resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleRoot greets the authorized user by display name.
func (ht *HTTPTransport) HandleRoot(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleMessage(w, r, "Hello ")
}

// HandleTest returns a protected test message for the authorized user.
func (ht *HTTPTransport) HandleTest(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleMessage(w, r, "This is a protected test message for ")
}

func (ht *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request, prefix string) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "message failed", "error", err)
		}
	}(r.Context())

	principal, err := principalFromRequest(w, r)
	if err != nil {
		return err
	}

	if err := http_.WriteJSON(w, http.StatusOK, messageResponse{Message: prefix + principal.DisplayName}); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

// HandleMe returns the profile of the authorized user.
func (ht *HTTPTransport) HandleMe(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleMe(w, r)
}

func (ht *HTTPTransport) handleMe(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "get profile failed", "error", err)
		}
	}(r.Context())

	principal, err := principalFromRequest(w, r)
	if err != nil {
		return err
	}

	if err := http_.WriteJSON(w, http.StatusOK, principal); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

// HandleHealth reports that the process is serving requests.
func (ht *HTTPTransport) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = http_.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principalFromRequest answers 401 itself when the route was not behind the authorizing middleware.
func principalFromRequest(w http.ResponseWriter, r *http.Request) (domain.Principal, error) {
	principal, ok := context_.PrincipalFromContext(r.Context())
	if !ok {
		http_.WriteUnauthorized(w, http_.CredentialsErrorDetail)

		return domain.Principal{}, ErrNoPrincipal
	}

	return principal, nil
}
