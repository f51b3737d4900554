// Package auth checks the shared API key that guards write operations.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// Header carries the API key on write requests.
const Header = "X-API-KEY"

var (
	// ErrMissingKey is returned when the request carries no API key
	ErrMissingKey = errors.New("missing " + Header + " header")

	// ErrInvalidKey is returned when the API key doesn't match
	ErrInvalidKey = errors.New("invalid API key")

	// ErrNotConfigured is returned when the server has no API key, which
	// rejects every write
	ErrNotConfigured = errors.New("no API key configured")
)

// ValidateKey checks provided against expected in constant time. Both keys
// are hashed first so the comparison time does not depend on their lengths.
func ValidateKey(provided, expected string) error {
	if expected == "" {
		return ErrNotConfigured
	}
	if provided == "" {
		return ErrMissingKey
	}

	providedSum := sha256.Sum256([]byte(provided))
	expectedSum := sha256.Sum256([]byte(expected))
	if !hmac.Equal(providedSum[:], expectedSum[:]) {
		return ErrInvalidKey
	}

	return nil
}
