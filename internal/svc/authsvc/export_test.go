package authsvc

import "context"

// DecoyHash exposes the hash unknown usernames are verified against.
func (s *AuthService) DecoyHash(ctx context.Context) (string, error) {
	return s.decoyHash(ctx)
}

// HashShape exposes hashShape.
func HashShape(storedHash string) string {
	return hashShape(storedHash)
}
