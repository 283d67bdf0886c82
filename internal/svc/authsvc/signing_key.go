package authsvc

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultKeySize is the number of random bytes in a generated signing key.
const DefaultKeySize = 32

// MinKeySize is the shortest signing key accepted from a file or the environment.
const MinKeySize = 16

// ErrWeakSigningKey is returned when a configured signing key is too short.
var ErrWeakSigningKey = errors.New("signing key too short")

// DecodeSigningKey reads a signing key, trimming surrounding whitespace.
// The key bytes are the file contents as-is, so operators may supply any secret text.
func DecodeSigningKey(key io.Reader) ([]byte, error) {
	buf, err := io.ReadAll(key)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	buf = bytes.TrimSpace(buf)
	if len(buf) < MinKeySize {
		return nil, fmt.Errorf("decode key: %w", ErrWeakSigningKey)
	}

	return buf, nil
}

// GenerateSigningKey creates a new random key of size bytes, encoded as base64url text.
func GenerateSigningKey(size int) ([]byte, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	key := make([]byte, base64.RawURLEncoding.EncodedLen(size))
	base64.RawURLEncoding.Encode(key, raw)

	return key, nil
}

// GetSigningKey returns the configured signing key.
// An inline key takes precedence. Otherwise the key is loaded from path,
// and if the file doesn't exist a new key is generated and saved there with mode 0600.
func GetSigningKey(inline, path string) ([]byte, error) {
	if inline != "" {
		return DecodeSigningKey(bytes.NewBufferString(inline))
	}

	// Try decode existing key
	keyFile, err := os.Open(path)
	if err == nil {
		defer keyFile.Close()

		signingKey, err := DecodeSigningKey(keyFile)
		if err != nil {
			return nil, fmt.Errorf("decode signing key: %w", err)
		}

		return signingKey, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open key file: %w", err)
	}

	// Generate new key
	signingKey, err := GenerateSigningKey(DefaultKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}

	// Write key to file
	if err := os.WriteFile(path, signingKey, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	return signingKey, nil
}
