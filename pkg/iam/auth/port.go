package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// TokenRepository persists continuation tokens. Rotation linearizability
// lives here: Revoke must affect exactly one not-yet-revoked row or fail.
type TokenRepository interface {
	Save(ctx context.Context, t *RefreshToken) error
	// FindActiveByHash returns the record with the given fingerprint where
	// revoked_at IS NULL and expires_at > now; otherwise a typed
	// invalid-refresh-token error.
	FindActiveByHash(ctx context.Context, hash string) (*RefreshToken, error)
	// Revoke marks the record with the given fingerprint revoked. The update
	// is conditional on revoked_at IS NULL; when two rotations race exactly
	// one succeeds and the loser gets the invalid-refresh-token error.
	Revoke(ctx context.Context, hash string) error
	// RevokeAllForUser revokes every live continuation token of a principal.
	RevokeAllForUser(ctx context.Context, userID kernel.UserID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// VerificationRepository persists email-verification tokens with
// at-most-one-active-per-principal semantics.
type VerificationRepository interface {
	// Store replaces any prior record for the principal.
	Store(ctx context.Context, t *EmailVerificationToken) error
	// Consume atomically resolves an unexpired token and deletes it. A miss
	// is the opaque invalid-lifecycle-token error.
	Consume(ctx context.Context, token string) (*EmailVerificationToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// PasswordResetRepository persists password-reset tokens; consumption sets
// used_at once, monotonically.
type PasswordResetRepository interface {
	// Store replaces any prior unused record for the principal.
	Store(ctx context.Context, t *PasswordResetToken) error
	// FindActive resolves a token that is neither used nor expired.
	FindActive(ctx context.Context, token string) (*PasswordResetToken, error)
	// MarkUsed sets used_at. Conditional on used_at IS NULL: a second use of
	// the same record fails with the invalid-lifecycle-token error.
	MarkUsed(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Blacklist is the revoked-access-token gate over the ephemeral store.
// Entries expire with the token they revoke, so the set stays bounded.
type Blacklist interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// TokenService is the signed access-token codec.
type TokenService interface {
	// GenerateAccessToken mints a signed token for the principal carrying the
	// given per-organization permission claims. Every mint gets a fresh jti.
	GenerateAccessToken(u *user.User, orgs []kernel.OrgMembership) (string, *AccessTokenClaims, error)
	// ValidateAccessToken verifies signature and expiry, then consults the
	// blacklist. All failure causes collapse into the one invalid-token error.
	ValidateAccessToken(ctx context.Context, token string) (*AccessTokenClaims, error)
}

// OrgClaimsProvider computes the per-organization membership claims minted
// into access tokens. Implemented by the rbac resolver; an interface here so
// auth carries no dependency on the authorization module.
type OrgClaimsProvider interface {
	OrgClaims(ctx context.Context, userID kernel.UserID) ([]kernel.OrgMembership, error)
}

// LifecycleMailer emits the account-lifecycle mails. Send failures are
// logged by callers, never failed through to the user.
type LifecycleMailer interface {
	SendVerification(ctx context.Context, to, displayName, token, expiresIn string) error
	SendPasswordReset(ctx context.Context, to, displayName, token, expiresIn string) error
	SendPasswordChanged(ctx context.Context, to, displayName string) error
}

// EventLogger records authentication events for operators.
type EventLogger interface {
	LogRegister(ctx context.Context, userID kernel.UserID, email string)
	LogLoginAttempt(ctx context.Context, email string, success bool)
	LogTokenRefresh(ctx context.Context, userID kernel.UserID)
	LogLogout(ctx context.Context, userID kernel.UserID)
	LogPasswordChange(ctx context.Context, userID kernel.UserID, viaReset bool)
}
