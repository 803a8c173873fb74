// Package auth implements the credential store: username to password-hash
// lookup backed by either a JSON file or Postgres. It deliberately knows
// nothing about connections or sessions; identity attachment happens in the
// gateway.
package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const bcryptCost = 10

// Credential is the stored record for one user.
type Credential struct {
	PasswordHash string    `json:"passwordHash"`
	Created      time.Time `json:"created"`
}

type Store interface {
	// Create registers a new user. ErrUserAlreadyExists if taken.
	Create(username, password string) error
	// Verify checks a password. ErrUserNotFound if the user is unknown,
	// ErrInvalidCredentials if the password does not match.
	Verify(username, password string) error
	// Exists reports whether the user is registered. Used by auto-login,
	// which trusts a previously issued cookie and skips the password.
	Exists(username string) (bool, error)
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func checkPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
