package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateAuthToken returns a fresh random bearer token, hex-encoded.
// Used by "runvault init" to seed a new configuration.
func GenerateAuthToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
