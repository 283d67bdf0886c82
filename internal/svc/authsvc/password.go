package authsvc

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	argon2Scheme = "argon2id"
	pbkdf2Scheme = "pbkdf2-sha256"

	saltLength = 16
	keyLength  = 32

	minArgon2Memory = 8 * 1024
)

var (
	// ErrInvalidHasherConfig is returned when the argon2 cost parameters are unusable.
	ErrInvalidHasherConfig = errors.New("invalid password hasher config")
	// ErrUnsupportedHash is returned when a stored hash has an unknown format.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// HasherConfig contains the argon2id cost parameters for new password hashes.
type HasherConfig struct {
	// Memory is the argon2 memory cost in KiB
	Memory uint32 `env:"ARGON2_MEMORY" default:"65536"`

	// Time is the argon2 number of passes
	Time uint32 `env:"ARGON2_TIME" default:"1"`

	// Parallelism is the argon2 number of lanes
	Parallelism uint8 `env:"ARGON2_PARALLELISM" default:"2"`
}

// PasswordHasher hashes new passwords with argon2id and verifies stored hashes.
// Verification also accepts the passlib "$pbkdf2-sha256$" format.
type PasswordHasher struct {
	cfg HasherConfig
}

// NewPasswordHasher validates cfg and returns a hasher using it for new hashes.
func NewPasswordHasher(cfg HasherConfig) (*PasswordHasher, error) {
	switch {
	case cfg.Memory < minArgon2Memory:
		return nil, fmt.Errorf("%w: memory must be at least %d KiB", ErrInvalidHasherConfig, minArgon2Memory)
	case cfg.Time < 1:
		return nil, fmt.Errorf("%w: time must be at least 1", ErrInvalidHasherConfig)
	case cfg.Parallelism < 1:
		return nil, fmt.Errorf("%w: parallelism must be at least 1", ErrInvalidHasherConfig)
	}

	return &PasswordHasher{cfg: cfg}, nil
}

// HashPassword returns a PHC-encoded argon2id hash of plaintext with a fresh random salt.
// Two calls with the same input yield different hashes.
func (h *PasswordHasher) HashPassword(plaintext string) (string, error) {
	params := argon2Params{memory: h.cfg.Memory, iterations: h.cfg.Time, parallelism: h.cfg.Parallelism}

	return hashArgon2(plaintext, params, saltLength, keyLength)
}

// HashLike hashes plaintext with the scheme, cost parameters, salt length and key
// length of storedHash, so that verifying against either hash costs the same.
// A storedHash in an unknown format yields HashPassword.
func (h *PasswordHasher) HashLike(plaintext, storedHash string) (string, error) {
	parts := strings.Split(storedHash, "$")

	switch {
	case hashShape(storedHash) == "":
		return h.HashPassword(plaintext)
	case parts[1] == pbkdf2Scheme:
		rounds, salt, key, err := parsePBKDF2(parts)
		if err != nil {
			return "", err
		}

		return hashPBKDF2(plaintext, rounds, len(salt), len(key))
	default:
		params, salt, key, err := parseArgon2(parts)
		if err != nil {
			return "", err
		}

		return hashArgon2(plaintext, params, len(salt), len(key))
	}
}

// hashShape returns storedHash without its salt and key, for example
// "$argon2id$v=19$m=65536,t=1,p=2", or "" if the format is not supported.
func hashShape(storedHash string) string {
	parts := strings.Split(storedHash, "$")

	switch {
	case len(parts) == 6 && parts[0] == "" && parts[1] == argon2Scheme:
		if _, _, _, err := parseArgon2(parts); err == nil {
			return strings.Join(parts[:4], "$")
		}
	case len(parts) == 5 && parts[0] == "" && parts[1] == pbkdf2Scheme:
		if _, _, _, err := parsePBKDF2(parts); err == nil {
			return strings.Join(parts[:3], "$")
		}
	}

	return ""
}

// VerifyPassword reports whether plaintext matches storedHash.
// Derived keys are compared in constant time. Unparseable hashes never match.
func (h *PasswordHasher) VerifyPassword(plaintext, storedHash string) bool {
	ok, err := verifyPassword(plaintext, storedHash)

	return err == nil && ok
}

func verifyPassword(plaintext, storedHash string) (bool, error) {
	// "$scheme$..." splits into an empty first element
	parts := strings.Split(storedHash, "$")
	if len(parts) < 2 || parts[0] != "" {
		return false, ErrUnsupportedHash
	}

	var got []byte

	switch parts[1] {
	case argon2Scheme:
		params, salt, want, err := parseArgon2(parts)
		if err != nil {
			return false, err
		}

		//nolint:gosec
		got = argon2.IDKey([]byte(plaintext), salt, params.iterations, params.memory, params.parallelism, uint32(len(want)))

		return subtle.ConstantTimeCompare(want, got) == 1, nil
	case pbkdf2Scheme:
		rounds, salt, want, err := parsePBKDF2(parts)
		if err != nil {
			return false, err
		}

		got = pbkdf2.Key([]byte(plaintext), salt, rounds, len(want), sha256.New)

		return subtle.ConstantTimeCompare(want, got) == 1, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedHash, parts[1])
	}
}

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func hashArgon2(plaintext string, params argon2Params, saltLen, keyLen int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	//nolint:gosec
	key := argon2.IDKey([]byte(plaintext), salt, params.iterations, params.memory, params.parallelism, uint32(keyLen))

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Scheme,
		argon2.Version,
		params.memory,
		params.iterations,
		params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// parseArgon2 parses "$argon2id$v=19$m=65536,t=1,p=2$salt$hash".
func parseArgon2(parts []string) (params argon2Params, salt, key []byte, err error) {
	if len(parts) != 6 {
		return params, nil, nil, fmt.Errorf("%w: argon2id field count", ErrUnsupportedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, fmt.Errorf("%w: argon2 version %q", ErrUnsupportedHash, parts[2])
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.iterations, &params.parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("%w: argon2 params: %w", ErrUnsupportedHash, err)
	}

	if params.memory < minArgon2Memory || params.iterations < 1 || params.parallelism < 1 {
		return params, nil, nil, fmt.Errorf("%w: argon2 params out of range", ErrUnsupportedHash)
	}

	salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: argon2 salt: %w", ErrUnsupportedHash, err)
	}

	key, err = base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, fmt.Errorf("%w: argon2 key", ErrUnsupportedHash)
	}

	return params, salt, key, nil
}

func hashPBKDF2(plaintext string, rounds, saltLen, keyLen int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := pbkdf2.Key([]byte(plaintext), salt, rounds, keyLen, sha256.New)

	return fmt.Sprintf("$%s$%d$%s$%s",
		pbkdf2Scheme,
		rounds,
		encodePasslibBase64(salt),
		encodePasslibBase64(key),
	), nil
}

// parsePBKDF2 parses the passlib format "$pbkdf2-sha256$rounds$salt$hash",
// where salt and hash use passlib's adapted base64 ('.' instead of '+', no padding).
func parsePBKDF2(parts []string) (rounds int, salt, key []byte, err error) {
	if len(parts) != 5 {
		return 0, nil, nil, fmt.Errorf("%w: pbkdf2 field count", ErrUnsupportedHash)
	}

	rounds, err = strconv.Atoi(parts[2])
	if err != nil || rounds < 1 {
		return 0, nil, nil, fmt.Errorf("%w: pbkdf2 rounds %q", ErrUnsupportedHash, parts[2])
	}

	salt, err = decodePasslibBase64(parts[3])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: pbkdf2 salt: %w", ErrUnsupportedHash, err)
	}

	key, err = decodePasslibBase64(parts[4])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, fmt.Errorf("%w: pbkdf2 key", ErrUnsupportedHash)
	}

	return rounds, salt, key, nil
}

func decodePasslibBase64(s string) ([]byte, error) {
	//nolint:wrapcheck
	return base64.RawStdEncoding.DecodeString(strings.ReplaceAll(s, ".", "+"))
}

func encodePasslibBase64(b []byte) string {
	return strings.ReplaceAll(base64.RawStdEncoding.EncodeToString(b), "+", ".")
}
