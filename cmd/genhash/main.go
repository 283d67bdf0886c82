package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mkrupp/tokengate/internal/infra/config"
	"github.com/mkrupp/tokengate/internal/infra/logging"
	"github.com/mkrupp/tokengate/internal/svc/authsvc"
)

const (
	appName = "tokengate"
	svcName = "authgw"
)

var (
	// ErrEmptyPassword is returned when no password was entered.
	ErrEmptyPassword = errors.New("empty password")

	errPasswordMismatch = errors.New("passwords do not match")
)

// Test seams for the terminal.
//
//nolint:gochecknoglobals
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// Config shares the gateway's hasher settings so generated hashes use the same cost.
type Config struct {
	config.EnvConfig

	Log    logging.LoggerConfig `envPrefix:"LOG_"`
	Hasher authsvc.HasherConfig `envPrefix:"AUTH_"`
}

func main() {
	var (
		ctx        = context.Background()
		loggerName = strings.ToLower(strings.Join([]string{appName, "genhash"}, "."))
	)

	cfg, err := loadConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genhash: invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	if err := run(cfg, os.Stdin, int(os.Stdin.Fd()), os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "genhash:", err)
		os.Exit(1)
	}
}

// loadConfig reads Config from the gateway's environment namespace.
func loadConfig(ctx context.Context) (Config, error) {
	var cfg Config

	configPrefix := strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// run reads one password and writes its hash to out.
// Prompts go to errOut so the hash can be piped.
func run(cfg Config, in io.Reader, fd int, out, errOut io.Writer) error {
	hasher, err := authsvc.NewPasswordHasher(cfg.Hasher)
	if err != nil {
		return fmt.Errorf("new password hasher: %w", err)
	}

	password, err := readSecret(in, fd, errOut)
	if err != nil {
		return err
	}

	hash, err := hasher.HashPassword(string(password))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := fmt.Fprintln(out, hash); err != nil {
		return fmt.Errorf("write hash: %w", err)
	}

	return nil
}

func readSecret(in io.Reader, fd int, errOut io.Writer) ([]byte, error) {
	if !isTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return nil, ErrEmptyPassword
		}

		return []byte(line), nil
	}

	fmt.Fprint(errOut, "Password: ")
	password, err := readPassword(fd)
	fmt.Fprintln(errOut)

	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}

	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	fmt.Fprint(errOut, "Repeat password: ")
	repeated, err := readPassword(fd)
	fmt.Fprintln(errOut)

	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}

	if string(password) != string(repeated) {
		return nil, errPasswordMismatch
	}

	return password, nil
}
