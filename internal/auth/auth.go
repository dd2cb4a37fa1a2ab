// Package auth validates the gateway's own caller API keys. Keys are stored
// as SHA-256 hashes in configuration, never in the clear.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/snowbridge-labs/analyst-gateway/internal/config"
)

// ErrInvalidKey is returned for unknown or malformed API keys.
var ErrInvalidKey = errors.New("invalid API key")

// Authenticator validates caller API keys against configured hashes.
type Authenticator struct {
	hashes map[string]string // key hash -> description
}

// NewAuthenticator builds an authenticator from configured key hashes.
// Returns nil when no keys are configured, which disables authentication.
func NewAuthenticator(keys []config.APIKeyConfig) *Authenticator {
	if len(keys) == 0 {
		return nil
	}
	a := &Authenticator{hashes: make(map[string]string, len(keys))}
	for _, k := range keys {
		a.hashes[strings.ToLower(k.KeyHash)] = k.Description
	}
	return a
}

// ValidateKey checks a presented key against the configured hashes.
func (a *Authenticator) ValidateKey(apiKey string) error {
	hash := HashAPIKey(apiKey)
	for candidate := range a.hashes {
		if subtle.ConstantTimeCompare([]byte(hash), []byte(candidate)) == 1 {
			return nil
		}
	}
	return ErrInvalidKey
}

// ExtractAPIKey pulls the bearer key out of the Authorization header.
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	return parts[1], nil
}

// HashAPIKey creates the SHA-256 hash of an API key for storage in config.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
