package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// refreshTokenBytes is the entropy of a refresh token (256 bits).
const refreshTokenBytes = 32

// GenerateRefreshToken returns a new opaque, URL-safe refresh token with 256 bits of entropy.
// Only its HashRefreshToken digest may be stored.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken is the hex SHA-256 digest persisted in place of the raw token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenHashEqual reports whether raw hashes to storedHash, in constant time.
// An empty raw token never matches.
func RefreshTokenHashEqual(raw, storedHash string) bool {
	if raw == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashRefreshToken(raw)), []byte(storedHash)) == 1
}
