package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Digits is the length of every one-time code.
const Digits = 6

// Generate returns a random 6-digit numeric code, zero-padded.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Hash returns the hex-encoded SHA-256 of code.
func Hash(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// Equal compares code against a stored hash in constant time.
func Equal(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(code)), []byte(storedHash)) == 1
}
