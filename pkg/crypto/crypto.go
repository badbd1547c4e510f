// Package crypto provides password hashing for the chat server.
//
// Passwords are hashed with Argon2id using a per-user random salt. The
// salt is generated at registration and stored alongside the hash; it is
// never shared between users.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// SaltLength is the byte length of a per-user password salt.
const SaltLength = 16

// Argon2id parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// GenerateSalt returns a fresh random salt for one user.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

// HashPassword derives the stored verifier for a password and salt.
func HashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword reports whether the password matches the stored verifier.
// The comparison is constant time.
func VerifyPassword(password string, salt, hash []byte) bool {
	derived := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}
