package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GeneratePublicToken creates the random, URL-safe token that scopes a
// customer-facing tracking page. length is the number of random bytes; the
// returned string is twice that in hex characters.
func GeneratePublicToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	return hex.EncodeToString(b), nil
}
