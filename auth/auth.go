// Package auth implements the token-based approval check. Only a
// one-way hash of the approval phrase is ever stored; a lost phrase can
// only be regenerated, not recovered.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrTokenRequired indicates an operation needing approval was
	// invoked without a token.
	ErrTokenRequired = errors.New("token required")
	// ErrInvalidToken indicates the supplied token does not match the
	// stored hash, or no secret is configured.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMismatch indicates the two entries of an interactive
	// generation did not match.
	ErrMismatch = errors.New("entries do not match")
)

// HashToken returns the SHA-256 hex digest of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SaveSecret writes the token's hash to the secret file with
// restrictive permissions, overwriting any previous hash.
func SaveSecret(path, token string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(HashToken(token)), 0o600)
}

// VerifyToken hashes the supplied token and compares it to the stored
// hash. A missing secret file means no token can verify.
func VerifyToken(path, token string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return HashToken(token) == strings.TrimSpace(string(data)), nil
}

// RequireToken is the gate used by USER-APPROVE checks and forced
// transitions: absent token fails with ErrTokenRequired, mismatched
// token with ErrInvalidToken.
func RequireToken(path, token string) error {
	if token == "" {
		return ErrTokenRequired
	}
	ok, err := VerifyToken(path, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// Generate prompts for a phrase twice via the supplied prompt function
// (hidden input at the CLI), verifies the entries match, and stores the
// hash.
func Generate(path string, prompt func(label string) (string, error)) error {
	token, err := prompt("Enter approval phrase: ")
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("%w: phrase cannot be empty", ErrInvalidToken)
	}
	confirm, err := prompt("Confirm approval phrase: ")
	if err != nil {
		return err
	}
	if token != confirm {
		return ErrMismatch
	}
	return SaveSecret(path, token)
}
