// Package security hashes admin passwords for seeding. Callers must not log
// or persist plaintext passwords.
package security

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a bcrypt hash of password with the given cost,
// clamped to bcrypt's valid range. Cost 12 is a reasonable default for
// interactive login.
func HashPassword(password []byte, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	b, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares password against the stored hash in constant time.
// Returns nil on match.
func VerifyPassword(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}
