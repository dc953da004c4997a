// Package token creates opaque bearer secrets.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const refreshTokenBytes = 32

// NewRefreshToken returns 32 random bytes as unpadded URL-safe base64.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
