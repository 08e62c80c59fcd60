// Package authsrv orchestrates the authentication flows: registration, login,
// token refresh, logout, and the email-bound lifecycle transitions.
package authsrv

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/Abraxas-365/aegis/pkg/logx"
)

// Session is the result of an authentication: the principal plus a freshly
// minted token pair. RefreshToken carries the bearer value; it exists nowhere
// else — storage only holds its fingerprint.
type Session struct {
	User         *user.User
	AccessToken  string
	RefreshToken string
}

// Config carries the token lifetimes.
type Config struct {
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.VerificationTokenTTL == 0 {
		c.VerificationTokenTTL = 24 * time.Hour
	}
	if c.ResetTokenTTL == 0 {
		c.ResetTokenTTL = time.Hour
	}
	return c
}

// AuthService implements the authentication flows.
type AuthService struct {
	users         *usersrv.UserService
	userRepo      user.Repository
	tokens        auth.TokenRepository
	verifications auth.VerificationRepository
	resets        auth.PasswordResetRepository
	tokenService  auth.TokenService
	blacklist     auth.Blacklist
	orgClaims     auth.OrgClaimsProvider
	mailer        auth.LifecycleMailer
	events        auth.EventLogger
	hasher        *cryptox.PasswordHasher
	cfg           Config

	// decoyHash equalizes login timing between unknown-email and
	// wrong-password failures.
	decoyHash string
}

// NewAuthService wires the orchestrator.
func NewAuthService(
	users *usersrv.UserService,
	userRepo user.Repository,
	tokens auth.TokenRepository,
	verifications auth.VerificationRepository,
	resets auth.PasswordResetRepository,
	tokenService auth.TokenService,
	blacklist auth.Blacklist,
	orgClaims auth.OrgClaimsProvider,
	mailer auth.LifecycleMailer,
	events auth.EventLogger,
	hasher *cryptox.PasswordHasher,
	cfg Config,
) (*AuthService, error) {
	decoy, err := hasher.Hash(cryptox.GenerateID())
	if err != nil {
		return nil, errx.Wrap(err, "failed to prepare login decoy hash", errx.TypeInternal)
	}
	return &AuthService{
		users:         users,
		userRepo:      userRepo,
		tokens:        tokens,
		verifications: verifications,
		resets:        resets,
		tokenService:  tokenService,
		blacklist:     blacklist,
		orgClaims:     orgClaims,
		mailer:        mailer,
		events:        events,
		hasher:        hasher,
		cfg:           cfg.withDefaults(),
		decoyHash:     decoy,
	}, nil
}

// ============================================================================
// Registration and login
// ============================================================================

// Register creates the account and logs it in immediately: verification is
// pending, not blocking. The access token carries an empty organization list;
// the verification mail failure is logged, never surfaced.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	u, err := s.users.Create(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}

	refresh, err := s.issueRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	access, _, err := s.tokenService.GenerateAccessToken(u, nil)
	if err != nil {
		return nil, err
	}

	if err := s.sendVerificationMail(ctx, u); err != nil {
		logx.WithError(err).WithFields(logx.Fields{"user_id": u.ID.String()}).
			Error("register: verification mail not sent")
	}

	s.events.LogRegister(ctx, u.ID, u.Email)
	return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

// Login authenticates by email and password. Unknown email and wrong password
// are indistinguishable in status, message and timing.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errx.IsCode(err, user.CodeNotFound) {
			// Burn a verify against the decoy so a miss costs what a
			// mismatch costs.
			_, _ = s.hasher.Verify(password, s.decoyHash)
			s.events.LogLoginAttempt(ctx, user.NormalizeEmail(email), false)
			return nil, auth.ErrInvalidCredentials()
		}
		return nil, err
	}

	if !u.IsActive() {
		s.events.LogLoginAttempt(ctx, u.Email, false)
		return nil, user.ErrSuspended()
	}
	if !u.HasPassword() {
		s.events.LogLoginAttempt(ctx, u.Email, false)
		return nil, auth.ErrSocialLoginOnly()
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.events.LogLoginAttempt(ctx, u.Email, false)
		return nil, auth.ErrInvalidCredentials()
	}

	if err := s.userRepo.UpdateLastLogin(ctx, u.ID); err != nil {
		logx.WithError(err).Warn("login: failed to update last login")
	}

	session, err := s.mintSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.events.LogLoginAttempt(ctx, u.Email, true)
	return session, nil
}

// ============================================================================
// Token rotation
// ============================================================================

// Refresh exchanges a live continuation token for a fresh pair. The consumed
// token is revoked first; of two racing rotations exactly one succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshBearer string) (*Session, error) {
	hash := cryptox.HashToken(refreshBearer)

	record, err := s.tokens.FindActiveByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	// The conditional revoke is the linearization point of the rotation.
	if err := s.tokens.Revoke(ctx, hash); err != nil {
		return nil, err
	}

	u, err := s.userRepo.FindByID(ctx, record.UserID)
	if err != nil {
		if errx.IsCode(err, user.CodeNotFound) {
			return nil, auth.ErrInvalidRefreshToken()
		}
		return nil, err
	}
	if !u.IsActive() {
		return nil, user.ErrSuspended()
	}

	session, err := s.mintSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.events.LogTokenRefresh(ctx, u.ID)
	return session, nil
}

// Logout is best-effort local intent: blacklist the access token if it still
// decodes, revoke the continuation token if present. Neither failure is
// surfaced — logout always succeeds.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshBearer string) {
	if accessToken != "" {
		if claims, err := s.tokenService.ValidateAccessToken(ctx, accessToken); err == nil {
			if err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				logx.WithError(err).Warn("logout: failed to blacklist access token")
			}
			s.events.LogLogout(ctx, kernel.NewUserID(claims.Subject))
		}
	}
	if refreshBearer != "" {
		if err := s.tokens.Revoke(ctx, cryptox.HashToken(refreshBearer)); err != nil {
			logx.WithError(err).Debug("logout: refresh token already dead")
		}
	}
}

// Me returns the principal behind a validated token subject.
func (s *AuthService) Me(ctx context.Context, userID kernel.UserID) (*user.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

// ============================================================================
// Password management
// ============================================================================

// ChangePassword verifies the current password, applies the policy to the new
// one, writes the hash and revokes every live continuation token so stolen
// sessions do not outlive the change.
func (s *AuthService) ChangePassword(ctx context.Context, userID kernel.UserID, current, newPassword string) error {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return auth.ErrSocialLoginOnly()
	}

	ok, err := s.hasher.Verify(current, u.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrInvalidCredentials()
	}

	if err := s.setNewPassword(ctx, u, newPassword); err != nil {
		return err
	}
	s.events.LogPasswordChange(ctx, u.ID, false)
	return nil
}

// VerifyEmail consumes a verification token and flips the verified flag. Any
// miss is one opaque failure.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	record, err := s.verifications.Consume(ctx, token)
	if err != nil {
		return err
	}
	return s.userRepo.MarkEmailVerified(ctx, record.UserID)
}

// ResendVerification mints a fresh verification token, replacing any prior
// one. An unknown email succeeds silently.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errx.IsCode(err, user.CodeNotFound) {
			return nil
		}
		return err
	}
	if u.EmailVerified {
		return auth.ErrAlreadyVerified()
	}
	if err := s.sendVerificationMail(ctx, u); err != nil {
		logx.WithError(err).WithFields(logx.Fields{"user_id": u.ID.String()}).
			Error("resend-verification: mail not sent")
	}
	return nil
}

// ForgotPassword mints a reset token and mails it. The response is uniform
// success whether the account is absent, suspended or unverified — only the
// mail differs. The divergence is logged for operators.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errx.IsCode(err, user.CodeNotFound) {
			return nil
		}
		return err
	}
	if !u.IsActive() || !u.EmailVerified {
		logx.WithFields(logx.Fields{"user_id": u.ID.String(), "verified": u.EmailVerified}).
			Info("forgot-password: account not eligible, mail suppressed")
		return nil
	}

	token, err := cryptox.GenerateSecureToken(cryptox.DefaultTokenBytes)
	if err != nil {
		return err
	}
	record := &auth.PasswordResetToken{
		ID:        cryptox.GenerateID(),
		UserID:    u.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.ResetTokenTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.resets.Store(ctx, record); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, u.Email, u.DisplayName, token, formatTTL(s.cfg.ResetTokenTTL)); err != nil {
		logx.WithError(err).WithFields(logx.Fields{"user_id": u.ID.String()}).
			Error("forgot-password: mail not sent")
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password. The token
// is marked used before the hash is written, so a racing duplicate loses; all
// continuation tokens are revoked afterwards.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	record, err := s.resets.FindActive(ctx, token)
	if err != nil {
		return err
	}
	u, err := s.userRepo.FindByID(ctx, record.UserID)
	if err != nil {
		if errx.IsCode(err, user.CodeNotFound) {
			return auth.ErrInvalidLifecycleToken()
		}
		return err
	}

	if err := user.CheckPasswordPolicy(newPassword); err != nil {
		return err
	}
	if err := s.resets.MarkUsed(ctx, record.ID); err != nil {
		return err
	}
	if err := s.setNewPassword(ctx, u, newPassword); err != nil {
		return err
	}
	s.events.LogPasswordChange(ctx, u.ID, true)
	return nil
}

// ============================================================================
// Internals
// ============================================================================

func (s *AuthService) mintSession(ctx context.Context, u *user.User) (*Session, error) {
	orgs, err := s.orgClaims.OrgClaims(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	access, _, err := s.tokenService.GenerateAccessToken(u, orgs)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issueRefreshToken(ctx context.Context, userID kernel.UserID) (string, error) {
	bearer, err := cryptox.GenerateSecureToken(cryptox.DefaultTokenBytes)
	if err != nil {
		return "", err
	}
	record := &auth.RefreshToken{
		ID:        cryptox.GenerateID(),
		UserID:    userID,
		TokenHash: cryptox.HashToken(bearer),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tokens.Save(ctx, record); err != nil {
		return "", err
	}
	return bearer, nil
}

func (s *AuthService) sendVerificationMail(ctx context.Context, u *user.User) error {
	token, err := cryptox.GenerateSecureToken(cryptox.DefaultTokenBytes)
	if err != nil {
		return err
	}
	record := &auth.EmailVerificationToken{
		ID:        cryptox.GenerateID(),
		UserID:    u.ID,
		Token:     token,
		Email:     u.Email,
		ExpiresAt: time.Now().Add(s.cfg.VerificationTokenTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.verifications.Store(ctx, record); err != nil {
		return err
	}
	return s.mailer.SendVerification(ctx, u.Email, u.DisplayName, token, formatTTL(s.cfg.VerificationTokenTTL))
}

// setNewPassword writes the hash and revokes every live continuation token,
// then emits the password-changed notice.
func (s *AuthService) setNewPassword(ctx context.Context, u *user.User, newPassword string) error {
	if err := user.CheckPasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return errx.Wrap(err, "failed to hash new password", errx.TypeInternal)
	}
	if err := s.userRepo.SetPasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		logx.WithError(err).WithFields(logx.Fields{"user_id": u.ID.String()}).
			Error("password change: failed to revoke continuation tokens")
	}
	if err := s.mailer.SendPasswordChanged(ctx, u.Email, u.DisplayName); err != nil {
		logx.WithError(err).WithFields(logx.Fields{"user_id": u.ID.String()}).
			Error("password change: notice mail not sent")
	}
	return nil
}

func formatTTL(d time.Duration) string {
	if h := int(d.Hours()); h >= 1 {
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
