// Package auth guards the HTTP API with static bearer API keys whose bcrypt
// hashes are listed in configuration.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyBytes = 32
	bcryptCost  = 12
)

// GenerateAPIKey generates a cryptographically secure API key.
// The key is 32 random bytes, hex-encoded to 64 characters.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashAPIKey hashes a key for storage in configuration.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash API key: %w", err)
	}
	return string(hash), nil
}

// KeySet verifies presented keys against configured bcrypt hashes. Keys
// that verified once are remembered by digest so that bcrypt runs once per
// key rather than once per request.
type KeySet struct {
	hashes   [][]byte
	verified sync.Map // sha256 hex -> struct{}
}

// NewKeySet creates a KeySet. An empty set accepts every request.
func NewKeySet(hashes []string) *KeySet {
	ks := &KeySet{}
	for _, h := range hashes {
		if h != "" {
			ks.hashes = append(ks.hashes, []byte(h))
		}
	}
	return ks
}

// Enabled reports whether any key is configured.
func (ks *KeySet) Enabled() bool {
	return len(ks.hashes) > 0
}

// Verify reports whether key matches one of the configured hashes.
func (ks *KeySet) Verify(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if _, ok := ks.verified.Load(digest); ok {
		return true
	}

	for _, h := range ks.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			ks.verified.Store(digest, struct{}{})
			return true
		}
	}
	return false
}
