// Package keys loads RSA key material and derives the public-key
// fingerprint that identifies a principal to the analyst service.
package keys

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrKeyNotFound is returned when a key file path does not exist.
var ErrKeyNotFound = errors.New("key file not found")

// KeyFormatError indicates that key material was present but could not be
// parsed as the expected RSA key type.
type KeyFormatError struct {
	Reason string
}

func (e *KeyFormatError) Error() string {
	return "invalid key format: " + e.Reason
}

// LoadPublicKey loads an RSA public key from either a filesystem path or raw
// PEM content. Sources starting with a PEM boundary are parsed directly,
// anything else is treated as a path.
func LoadPublicKey(source string) (*rsa.PublicKey, error) {
	if strings.HasPrefix(strings.TrimSpace(source), "-----BEGIN") {
		return ParsePublicKey([]byte(source))
	}

	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, source)
		}
		return nil, fmt.Errorf("read public key %s: %w", source, err)
	}
	return ParsePublicKey(data)
}

// ParsePublicKey parses a PEM-encoded RSA public key (SubjectPublicKeyInfo).
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, &KeyFormatError{Reason: "no PEM block found"}
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &KeyFormatError{Reason: fmt.Sprintf("parse public key: %v", err)}
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, &KeyFormatError{Reason: fmt.Sprintf("not an RSA public key (%T)", parsed)}
	}
	return pub, nil
}

// LoadPrivateKey loads a PEM-encoded RSA private key from a file.
// Both PKCS#8 and PKCS#1 encodings are accepted.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &KeyFormatError{Reason: "no PEM block found"}
	}

	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, &KeyFormatError{Reason: fmt.Sprintf("not an RSA private key (%T)", parsed)}
		}
		return key, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, &KeyFormatError{Reason: fmt.Sprintf("parse private key: %v", err)}
	}
	return key, nil
}

// Fingerprint returns the lowercase-hex SHA-256 digest of the key's DER
// SubjectPublicKeyInfo encoding. The same key always yields the same
// fingerprint.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

// FingerprintsMatch reports whether two fingerprints are identical.
// Fingerprints are public values, so a constant-time comparison is not needed.
func FingerprintsMatch(a, b string) bool {
	return a == b
}
