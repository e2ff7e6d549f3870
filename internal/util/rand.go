package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RandomString returns n random bytes encoded as unpadded URL-safe base64.
func RandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// OpaqueToken returns a prefixed random token, e.g. "at_3q2...".
func OpaqueToken(prefix string) (string, error) {
	s, err := RandomString(32)
	if err != nil {
		return "", err
	}
	return prefix + "_" + s, nil
}
