package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/tokengate/internal/infra/config"
	"github.com/mkrupp/tokengate/internal/infra/logging"
	"github.com/mkrupp/tokengate/internal/infra/transport/http"
	"github.com/mkrupp/tokengate/internal/repo/user"
	"github.com/mkrupp/tokengate/internal/svc/authsvc"
)

const (
	appName = "tokengate"
	svcName = "authgw"
)

type Config struct {
	config.EnvConfig

	Log  logging.LoggerConfig        `envPrefix:"LOG_"`
	Auth authsvc.AuthConfig          `envPrefix:"AUTH_"`
	HTTP authsvc.HTTPTransportConfig `envPrefix:"HTTP_"`
	User user.BackendConfig          `envPrefix:"USER_"`
}

func main() {
	var (
		cfg Config

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid configuration: %v\n", svcName, err)
		stop()
		os.Exit(2)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	if err := run(ctx, cfg); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.authgw")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "gateway stopped", "error", err)

			return
		}

		log.InfoContext(ctx, "gateway stopped")
	}()

	repoFactory, err := user.BackendRepositoryFactory(ctx, cfg.User)
	if err != nil {
		return fmt.Errorf("user backend: %w", err)
	}

	authSvc, err := authsvc.NewAuthService(repoFactory, cfg.Auth)
	if err != nil {
		return fmt.Errorf("new auth service: %w", err)
	}
	defer authSvc.Close()

	log.InfoContext(ctx, "starting",
		"backend", cfg.User.Backend,
		"algorithm", authSvc.Tokens.Algorithm(),
		"token_ttl", cfg.Auth.TokenTTL.String(),
	)

	httpTransport := authsvc.NewHTTPTransport(authSvc, cfg.HTTP)

	if err := http.ListenAndServe(ctx, httpTransport, cfg.HTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
