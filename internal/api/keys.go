package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashKey returns the hex sha256 of a plain API key, as stored.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix is the visible part of keys issued for projectID.
func KeyPrefix(projectID string) string {
	if len(projectID) > 8 {
		projectID = projectID[:8]
	}
	return "pw_" + projectID + "_"
}

// GenerateKey creates a new plain API key for projectID. Only its hash should
// be persisted.
func GenerateKey(projectID string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPrefix(projectID) + hex.EncodeToString(b), nil
}
