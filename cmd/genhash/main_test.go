package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/tokengate/internal/infra/config"
	"github.com/mkrupp/tokengate/internal/svc/authsvc"
)

//nolint:gochecknoglobals
var testConfig = Config{Hasher: authsvc.HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1}}

func stubTerminal(t *testing.T, tty bool, inputs ...string) {
	t.Helper()

	oldRead, oldIsTerminal := readPassword, isTerminal

	t.Cleanup(func() {
		readPassword, isTerminal = oldRead, oldIsTerminal
	})

	isTerminal = func(int) bool { return tty }
	readPassword = func(int) ([]byte, error) {
		if len(inputs) == 0 {
			return nil, errors.New("no more input")
		}

		next := inputs[0]
		inputs = inputs[1:]

		return []byte(next), nil
	}
}

//nolint:paralleltest
func TestRun_Stdin(t *testing.T) {
	stubTerminal(t, false)

	var out, errOut bytes.Buffer

	require.NoError(t, run(testConfig, strings.NewReader("secret\n"), 0, &out, &errOut))

	hash := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"), hash)
	assert.Empty(t, errOut.String())

	hasher, err := authsvc.NewPasswordHasher(testConfig.Hasher)
	require.NoError(t, err)
	assert.True(t, hasher.VerifyPassword("secret", hash))
}

//nolint:paralleltest
func TestRun_Terminal(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []string
		wantErr error
	}{
		{name: "matching passwords", inputs: []string{"secret", "secret"}},
		{name: "mismatch", inputs: []string{"secret", "secreT"}, wantErr: errPasswordMismatch},
		{name: "empty", inputs: []string{""}, wantErr: ErrEmptyPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubTerminal(t, true, tt.inputs...)

			var out, errOut bytes.Buffer

			err := run(testConfig, strings.NewReader(""), 0, &out, &errOut)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, out.String())

				return
			}

			require.NoError(t, err)
			assert.Contains(t, errOut.String(), "Password: ")
			assert.True(t, strings.HasPrefix(out.String(), "$argon2id$"))
		})
	}
}

//nolint:paralleltest
func TestRun_EmptyStdin(t *testing.T) {
	stubTerminal(t, false)

	var out, errOut bytes.Buffer

	err := run(testConfig, strings.NewReader("\n"), 0, &out, &errOut)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

//nolint:paralleltest
func TestRun_InvalidConfig(t *testing.T) {
	stubTerminal(t, false)

	var out, errOut bytes.Buffer

	err := run(Config{}, strings.NewReader("secret\n"), 0, &out, &errOut)
	assert.ErrorIs(t, err, authsvc.ErrInvalidHasherConfig)
}

//nolint:paralleltest
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "defaults"},
		{
			name: "gateway hasher settings",
			env:  map[string]string{"TOKENGATE_AUTHGW_AUTH_ARGON2_PARALLELISM": "4"},
		},
		{
			name:    "bad number",
			env:     map[string]string{"TOKENGATE_AUTHGW_AUTH_ARGON2_MEMORY": "lots"},
			wantErr: true,
		},
		{
			name: "every failure reported",
			env: map[string]string{
				"TOKENGATE_AUTHGW_AUTH_ARGON2_MEMORY": "lots",
				"TOKENGATE_AUTHGW_AUTH_ARGON2_TIME":   "-1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			cfg, err := loadConfig(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.NotErrorIs(t, err, config.ErrInvalidConfig)

				for key := range tt.env {
					assert.Contains(t, err.Error(), strings.TrimPrefix(key, "TOKENGATE_AUTHGW_"))
				}

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "TOKENGATE_AUTHGW", cfg.Namespace())

			if tt.env != nil {
				assert.EqualValues(t, 4, cfg.Hasher.Parallelism)
			}
		})
	}
}
