package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned when a password does not match its hash.
var ErrPasswordMismatch = errors.New("password does not match")

// HashPassword hashes a plaintext password. A cost outside bcrypt's range
// falls back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// GuestPasswordHash hashes a random secret that is never shown to anyone.
// Guest accounts for LINE submitters carry it so they cannot be logged into.
func GuestPasswordHash(cost int) (string, error) {
	return HashPassword(uuid.NewString(), cost)
}

// ComparePassword verifies plain against hashed.
func ComparePassword(hashed, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
