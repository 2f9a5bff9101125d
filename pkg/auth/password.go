package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost = 12
	// bcrypt silently ignores input beyond 72 bytes
	MaxPasswordLen = 72
)

var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooLong  = fmt.Errorf("password exceeds %d bytes", MaxPasswordLen)
	ErrPasswordMismatch = bcrypt.ErrMismatchedHashAndPassword
)

var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("no-such-account"), BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt dummy hash: %v", err))
	}
	return hash
})

// HashPassword returns the bcrypt hash stored for a credential
func HashPassword(password string) (string, error) {
	switch {
	case password == "":
		return "", ErrEmptyPassword
	case len(password) > MaxPasswordLen:
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword returns nil when password matches hash
func ComparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// CompareDummy spends one bcrypt comparison at the production cost and always
// fails. Login calls it for unknown accounts so they reject in the same time.
func CompareDummy(password string) error {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
	return ErrPasswordMismatch
}
