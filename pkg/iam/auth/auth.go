// Package auth holds the credential and token domain: continuation (refresh)
// tokens, email-bound lifecycle tokens, the signed access-token codec and the
// blacklist gate.
package auth

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// ============================================================================
// Token records
// ============================================================================

// RefreshToken is a one-use rotatable continuation token. Only the SHA-256
// fingerprint of the bearer value is ever stored.
type RefreshToken struct {
	ID        string        `db:"id" json:"id"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	TokenHash string        `db:"token_hash" json:"-"`
	ExpiresAt time.Time     `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time    `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the token's lifetime has passed.
func (r *RefreshToken) IsExpired() bool { return time.Now().After(r.ExpiresAt) }

// IsValid reports whether the token can still be exchanged.
func (r *RefreshToken) IsValid() bool { return r.RevokedAt == nil && !r.IsExpired() }

// EmailVerificationToken binds a pending email confirmation to a principal.
// The bearer value is stored directly: the verify lookup addresses it by
// value, and it grants nothing beyond flipping the verified flag. At most one active record exists per principal.
type EmailVerificationToken struct {
	ID        string        `db:"id" json:"id"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	Token     string        `db:"token" json:"-"`
	Email     string        `db:"email" json:"email"` // snapshot at issuance
	ExpiresAt time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

func (t *EmailVerificationToken) IsExpired() bool { return time.Now().After(t.ExpiresAt) }

// PasswordResetToken is single-use; consumption is recorded in UsedAt rather
// than by row deletion so replay attempts stay observable.
type PasswordResetToken struct {
	ID        string        `db:"id" json:"id"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	Token     string        `db:"token" json:"-"`
	ExpiresAt time.Time     `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time    `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

func (t *PasswordResetToken) IsExpired() bool { return time.Now().After(t.ExpiresAt) }

// IsValid reports whether the token can still be consumed.
func (t *PasswordResetToken) IsValid() bool { return t.UsedAt == nil && !t.IsExpired() }

// ============================================================================
// Error registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	// CodeInvalidCredentials covers unknown email and wrong password alike —
	// one message, one status, no account enumeration.
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthentication, http.StatusUnauthorized, "Invalid email or password")

	CodeInvalidRefreshToken = ErrRegistry.Register("INVALID_REFRESH_TOKEN", errx.TypeAuthentication, http.StatusUnauthorized, "Invalid or expired refresh token")
	CodeSocialLoginOnly     = ErrRegistry.Register("SOCIAL_LOGIN_ONLY", errx.TypeAuthentication, http.StatusUnauthorized, "This account uses social login")

	// CodeInvalidLifecycleToken covers missing, expired and already-used
	// verification/reset tokens with one opaque message.
	CodeInvalidLifecycleToken = ErrRegistry.Register("INVALID_LIFECYCLE_TOKEN", errx.TypeValidation, http.StatusBadRequest, "Invalid or expired token")

	CodeAlreadyVerified       = ErrRegistry.Register("ALREADY_VERIFIED", errx.TypeValidation, http.StatusBadRequest, "Email is already verified")
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
)

func ErrInvalidCredentials() *errx.Error    { return ErrRegistry.New(CodeInvalidCredentials) }
func ErrInvalidRefreshToken() *errx.Error   { return ErrRegistry.New(CodeInvalidRefreshToken) }
func ErrSocialLoginOnly() *errx.Error       { return ErrRegistry.New(CodeSocialLoginOnly) }
func ErrInvalidLifecycleToken() *errx.Error { return ErrRegistry.New(CodeInvalidLifecycleToken) }
func ErrAlreadyVerified() *errx.Error       { return ErrRegistry.New(CodeAlreadyVerified) }
func ErrTokenGenerationFailed() *errx.Error { return ErrRegistry.New(CodeTokenGenerationFailed) }
