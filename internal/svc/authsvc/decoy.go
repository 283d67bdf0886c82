package authsvc

import (
	"fmt"
	"sync"
)

// decoyHashes holds hashes of a random secret that logins for unknown usernames
// verify against. There is one decoy per hash shape (scheme and cost parameters),
// and the one in use follows the shape of the stored records, so both login
// branches pay the same hashing cost even for legacy pbkdf2 records.
type decoyHashes struct {
	hasher *PasswordHasher
	secret string

	mu      sync.Mutex
	byShape map[string]string
	latest  string // a stored hash with the shape to imitate
}

func newDecoyHashes(hasher *PasswordHasher) (*decoyHashes, error) {
	secret, err := GenerateSigningKey(DefaultKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate decoy password: %w", err)
	}

	initial, err := hasher.HashPassword(string(secret))
	if err != nil {
		return nil, fmt.Errorf("hash decoy password: %w", err)
	}

	return &decoyHashes{
		hasher:  hasher,
		secret:  string(secret),
		byShape: map[string]string{hashShape(initial): initial},
		latest:  initial,
	}, nil
}

// observe records the shape of a hash read from the store.
func (d *decoyHashes) observe(storedHash string) {
	if hashShape(storedHash) == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.latest = storedHash
}

// current returns the decoy for the most recently observed shape.
// A shape seen for the first time costs one extra hash to build its decoy.
func (d *decoyHashes) current() (string, error) {
	d.mu.Lock()
	template := d.latest
	decoy, ok := d.byShape[hashShape(template)]
	d.mu.Unlock()

	if ok {
		return decoy, nil
	}

	decoy, err := d.hasher.HashLike(d.secret, template)
	if err != nil {
		return "", fmt.Errorf("hash decoy password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byShape[hashShape(template)]; ok {
		return existing, nil
	}

	d.byShape[hashShape(template)] = decoy

	return decoy, nil
}
