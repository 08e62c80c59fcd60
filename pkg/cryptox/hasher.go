// Package cryptox holds the credential-hashing and token-minting primitives.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	saltLength       = 16
	keyLength        = 32
)

var ErrRegistry = errx.NewRegistry("CRYPTO")

var (
	CodeMalformedHash = ErrRegistry.Register("MALFORMED_HASH", errx.TypeInternal, http.StatusInternalServerError, "Malformed password hash")
	CodeEntropy       = ErrRegistry.Register("ENTROPY_UNAVAILABLE", errx.TypeInternal, http.StatusInternalServerError, "Secure randomness unavailable")
)

// PasswordHasher derives and verifies PBKDF2-HMAC-SHA256 password hashes.
// Storage encoding is base64(salt || derived key).
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher creates a hasher with the production iteration count.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{iterations: pbkdf2Iterations}
}

// NewPasswordHasherForTest creates a hasher with a reduced iteration count.
// Only for tests; never wire into the container.
func NewPasswordHasherForTest(iterations int) *PasswordHasher {
	return &PasswordHasher{iterations: iterations}
}

// Hash derives a key from the password under a fresh random salt.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt, err := randomBytes(saltLength)
	if err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), salt, h.iterations, keyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(append(salt, key...)), nil
}

// Verify re-derives the key with the stored salt and compares in constant time.
// A malformed stored blob fails verification with a typed error.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false, ErrRegistry.NewWithCause(CodeMalformedHash, err)
	}
	if len(raw) < saltLength+keyLength {
		return false, ErrRegistry.New(CodeMalformedHash).WithDetail("length", len(raw))
	}
	salt, stored := raw[:saltLength], raw[saltLength:]
	derived := pbkdf2.Key([]byte(password), salt, h.iterations, len(stored), sha256.New)
	return subtle.ConstantTimeCompare(derived, stored) == 1, nil
}

// HashToken returns base64(SHA-256(token)). Refresh tokens are stored as
// this fingerprint, never as the bearer value. Unsalted: equality lookup is
// the only query.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// TokenHashEqual compares two token fingerprints in constant time.
func TokenHashEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
