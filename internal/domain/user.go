package domain

import (
	"errors"
	"log/slog"
)

var (
	// ErrUserAlreadyExists is returned when a store is seeded with a duplicate username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned when the username/password combination is incorrect.
	// It deliberately covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserRecord is a stored user as resolved by a credential store.
type UserRecord struct {
	Username     string `json:"username"`        // Unique, case-sensitive lookup key
	DisplayName  string `json:"full_name"`       // Human readable name
	Email        string `json:"email"`           // Contact address
	PasswordHash string `json:"hashed_password"` // Encoded password hash
	Disabled     bool   `json:"disabled"`        // Disabled users cannot log in or use tokens
}

// Principal returns the public view of the record with the password hash stripped.
func (u UserRecord) Principal() Principal {
	return Principal{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Disabled:    u.Disabled,
	}
}

// Principal is the authenticated user as exposed to callers.
type Principal struct {
	Username    string `json:"username"`
	DisplayName string `json:"full_name"`
	Email       string `json:"email"`
	Disabled    bool   `json:"disabled"`
}

// Credentials is a username/password pair presented at login.
// The password is plaintext and must never be persisted or logged.
type Credentials struct {
	Username string
	Password string
}

// LogValue implements slog.LogValuer and never renders the password.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("password", "[redacted]"),
	)
}
