package credentials

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
)

// secretEntropyBytes is the raw entropy backing every opaque secret.
const secretEntropyBytes = 32

// SecretHasher derives the storage lookup key for an opaque secret. The
// transform is keyed so a leaked database cannot be turned into valid
// lookups without the derivation key. This is intentionally fast; the slow
// adaptive hash is reserved for passwords.
type SecretHasher struct {
	key []byte
}

// NewSecretHasher creates a hasher keyed with the configured derivation
// secret.
func NewSecretHasher(key []byte) *SecretHasher {
	return &SecretHasher{key: key}
}

// Hash returns the hex-encoded HMAC-SHA256 of the secret.
func (h *SecretHasher) Hash(secret string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two lookup keys in constant time.
func (h *SecretHasher) Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewOpaqueSecret generates a high-entropy, URL-safe opaque secret. Clients
// treat it as a bearer string and never decode it.
func NewOpaqueSecret() (string, error) {
	buf := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate secret entropy")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
