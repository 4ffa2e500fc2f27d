// Package secrets hashes and verifies profile passphrases.
package secrets

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "profilevault/pkg/domain-errors"
)

// Hash creates a bcrypt hash of the passphrase for storage on the profile
// record. The plaintext is never persisted.
func Hash(passphrase string) (string, error) {
	if passphrase == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "passphrase cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "passphrase is too long")
		}
		return "", fmt.Errorf("could not hash passphrase: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext passphrase against a stored hash. A mismatch is
// CodeUnauthorized so callers can distinguish it from infrastructure failure.
func Verify(passphrase, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid passphrase")
		}
		return fmt.Errorf("could not verify passphrase: %w", err)
	}
	return nil
}
