package cryptox

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// DefaultTokenBytes is the entropy of minted opaque tokens.
const DefaultTokenBytes = 32

// GenerateSecureToken mints n random bytes as URL-safe unpadded base64.
// Randomness comes from crypto/rand only; failure is returned, never papered
// over with a weaker source.
func GenerateSecureToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateID mints a UUID v4 identity.
func GenerateID() string {
	return uuid.NewString()
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, ErrRegistry.NewWithCause(CodeEntropy, err)
	}
	return b, nil
}
