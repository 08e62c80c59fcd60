package authsrv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memUserRepo struct {
	byID map[kernel.UserID]*user.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[kernel.UserID]*user.User)}
}

func (m *memUserRepo) Create(_ context.Context, u *user.User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return user.ErrDuplicateEmail()
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(_ context.Context, id kernel.UserID) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound()
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range m.byID {
		if u.Email == user.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound()
}

func (m *memUserRepo) UpdateLastLogin(_ context.Context, id kernel.UserID) error {
	if u, ok := m.byID[id]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

func (m *memUserRepo) SetPasswordHash(_ context.Context, id kernel.UserID, hash string) error {
	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound()
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memUserRepo) MarkEmailVerified(_ context.Context, id kernel.UserID) error {
	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound()
	}
	u.EmailVerified = true
	return nil
}

func (m *memUserRepo) ListRecent(_ context.Context, limit int) ([]*user.User, error) {
	var out []*user.User
	for _, u := range m.byID {
		cp := *u
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memTokenRepo struct {
	mu   sync.Mutex
	rows map[string]*auth.RefreshToken // by hash
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{rows: make(map[string]*auth.RefreshToken)}
}

func (m *memTokenRepo) Save(_ context.Context, t *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows[t.TokenHash] = &cp
	return nil
}

func (m *memTokenRepo) FindActiveByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[hash]
	if !ok || !t.IsValid() {
		return nil, auth.ErrInvalidRefreshToken()
	}
	cp := *t
	return &cp, nil
}

func (m *memTokenRepo) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[hash]
	if !ok || t.RevokedAt != nil {
		return auth.ErrInvalidRefreshToken()
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (m *memTokenRepo) RevokeAllForUser(_ context.Context, userID kernel.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTokenRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

func (m *memTokenRepo) liveCount(userID kernel.UserID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.rows {
		if t.UserID == userID && t.IsValid() {
			n++
		}
	}
	return n
}

type memVerificationRepo struct {
	rows map[string]*auth.EmailVerificationToken // by token
}

func newMemVerificationRepo() *memVerificationRepo {
	return &memVerificationRepo{rows: make(map[string]*auth.EmailVerificationToken)}
}

func (m *memVerificationRepo) Store(_ context.Context, t *auth.EmailVerificationToken) error {
	for tok, existing := range m.rows {
		if existing.UserID == t.UserID {
			delete(m.rows, tok)
		}
	}
	cp := *t
	m.rows[t.Token] = &cp
	return nil
}

func (m *memVerificationRepo) Consume(_ context.Context, token string) (*auth.EmailVerificationToken, error) {
	t, ok := m.rows[token]
	if !ok || t.IsExpired() {
		return nil, auth.ErrInvalidLifecycleToken()
	}
	delete(m.rows, token)
	return t, nil
}

func (m *memVerificationRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

type memResetRepo struct {
	rows map[string]*auth.PasswordResetToken // by id
}

func newMemResetRepo() *memResetRepo {
	return &memResetRepo{rows: make(map[string]*auth.PasswordResetToken)}
}

func (m *memResetRepo) Store(_ context.Context, t *auth.PasswordResetToken) error {
	for id, existing := range m.rows {
		if existing.UserID == t.UserID && existing.UsedAt == nil {
			delete(m.rows, id)
		}
	}
	cp := *t
	m.rows[t.ID] = &cp
	return nil
}

func (m *memResetRepo) FindActive(_ context.Context, token string) (*auth.PasswordResetToken, error) {
	for _, t := range m.rows {
		if t.Token == token && t.IsValid() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, auth.ErrInvalidLifecycleToken()
}

func (m *memResetRepo) MarkUsed(_ context.Context, id string) error {
	t, ok := m.rows[id]
	if !ok || t.UsedAt != nil {
		return auth.ErrInvalidLifecycleToken()
	}
	now := time.Now()
	t.UsedAt = &now
	return nil
}

func (m *memResetRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

type memBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{entries: make(map[string]time.Time)}
}

func (b *memBlacklist) Add(_ context.Context, jti string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[jti] = expiresAt
	return nil
}

func (b *memBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[jti]
	return ok && time.Now().Before(exp), nil
}

type noOrgClaims struct{}

func (noOrgClaims) OrgClaims(_ context.Context, _ kernel.UserID) ([]kernel.OrgMembership, error) {
	return nil, nil
}

// recordingMailer captures the lifecycle mails.
type recordingMailer struct {
	verifications   map[string]string // to -> token
	resets          map[string]string // to -> token
	changedNotices  []string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		verifications: make(map[string]string),
		resets:        make(map[string]string),
	}
}

func (m *recordingMailer) SendVerification(_ context.Context, to, _, token, _ string) error {
	m.verifications[to] = token
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, _, token, _ string) error {
	m.resets[to] = token
	return nil
}

func (m *recordingMailer) SendPasswordChanged(_ context.Context, to, _ string) error {
	m.changedNotices = append(m.changedNotices, to)
	return nil
}

type nopEvents struct{}

func (nopEvents) LogRegister(context.Context, kernel.UserID, string)      {}
func (nopEvents) LogLoginAttempt(context.Context, string, bool)           {}
func (nopEvents) LogTokenRefresh(context.Context, kernel.UserID)          {}
func (nopEvents) LogLogout(context.Context, kernel.UserID)                {}
func (nopEvents) LogPasswordChange(context.Context, kernel.UserID, bool)  {}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	svc       *AuthService
	userRepo  *memUserRepo
	tokens    *memTokenRepo
	verifies  *memVerificationRepo
	resets    *memResetRepo
	blacklist *memBlacklist
	tokenSvc  auth.TokenService
	mailer    *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hasher := cryptox.NewPasswordHasherForTest(1000)
	userRepo := newMemUserRepo()
	tokens := newMemTokenRepo()
	verifies := newMemVerificationRepo()
	resets := newMemResetRepo()
	blacklist := newMemBlacklist()
	tokenSvc := auth.NewJWTService("unit-test-secret", 15*time.Minute, "aegis", blacklist)
	mailer := newRecordingMailer()

	svc, err := NewAuthService(
		usersrv.NewUserService(userRepo, hasher),
		userRepo, tokens, verifies, resets,
		tokenSvc, blacklist, noOrgClaims{}, mailer, nopEvents{}, hasher,
		Config{},
	)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return &fixture{
		svc:       svc,
		userRepo:  userRepo,
		tokens:    tokens,
		verifies:  verifies,
		resets:    resets,
		blacklist: blacklist,
		tokenSvc:  tokenSvc,
		mailer:    mailer,
	}
}

const (
	testEmail    = "user@example.com"
	testPassword = "SecureP@ss123"
)

func (f *fixture) register(t *testing.T) *Session {
	t.Helper()
	s, err := f.svc.Register(context.Background(), testEmail, testPassword, "jane")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)

	if s.AccessToken == "" || s.RefreshToken == "" {
		t.Fatal("register must mint a token pair")
	}
	if s.User.EmailVerified {
		t.Error("registration must not verify the email")
	}
	if f.mailer.verifications[testEmail] == "" {
		t.Error("register must request a verification mail")
	}

	login, err := f.svc.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.AccessToken == s.AccessToken || login.RefreshToken == s.RefreshToken {
		t.Error("login must mint a fresh pair")
	}
	if login.User.DisplayName != "jane" {
		t.Errorf("displayName = %s", login.User.DisplayName)
	}
}

func TestLoginEnumerationOpacity(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	_, errUnknown := f.svc.Login(context.Background(), "ghost@example.com", testPassword)
	_, errWrongPw := f.svc.Login(context.Background(), testEmail, "WrongP@ss123")

	if !errx.IsCode(errUnknown, auth.CodeInvalidCredentials) {
		t.Fatalf("unknown email: %v", errUnknown)
	}
	if !errx.IsCode(errWrongPw, auth.CodeInvalidCredentials) {
		t.Fatalf("wrong password: %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Error("unknown-email and wrong-password must be indistinguishable")
	}
}

func TestLoginSuspendedAndPasswordless(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)

	f.userRepo.byID[s.User.ID].Status = user.StatusSuspended
	if _, err := f.svc.Login(context.Background(), testEmail, testPassword); !errx.IsCode(err, user.CodeSuspended) {
		t.Fatalf("suspended login: %v", err)
	}

	f.userRepo.byID[s.User.ID].Status = user.StatusActive
	f.userRepo.byID[s.User.ID].PasswordHash = ""
	if _, err := f.svc.Login(context.Background(), testEmail, testPassword); !errx.IsCode(err, auth.CodeSocialLoginOnly) {
		t.Fatalf("password-less login: %v", err)
	}
}

func TestRefreshRotationSingleUse(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)

	next, err := f.svc.Refresh(context.Background(), s.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if next.RefreshToken == s.RefreshToken {
		t.Error("rotation must mint a new bearer")
	}

	if _, err := f.svc.Refresh(context.Background(), s.RefreshToken); !errx.IsCode(err, auth.CodeInvalidRefreshToken) {
		t.Fatalf("second use of a consumed token: %v", err)
	}

	// The rotated-in token still works.
	if _, err := f.svc.Refresh(context.Background(), next.RefreshToken); err != nil {
		t.Fatalf("rotated token refresh: %v", err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)

	token := f.mailer.verifications[testEmail]
	if err := f.svc.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	u, _ := f.svc.Me(context.Background(), s.User.ID)
	if !u.EmailVerified {
		t.Error("verification must flip the flag")
	}

	// Single use: the record is gone.
	if err := f.svc.VerifyEmail(context.Background(), token); !errx.IsCode(err, auth.CodeInvalidLifecycleToken) {
		t.Fatalf("second verify: %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	first := f.mailer.verifications[testEmail]
	if err := f.svc.ResendVerification(context.Background(), testEmail); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	second := f.mailer.verifications[testEmail]
	if first == second {
		t.Error("resend must mint a fresh token")
	}

	// The replaced token is dead.
	if err := f.svc.VerifyEmail(context.Background(), first); !errx.IsCode(err, auth.CodeInvalidLifecycleToken) {
		t.Fatalf("replaced token: %v", err)
	}
	if err := f.svc.VerifyEmail(context.Background(), second); err != nil {
		t.Fatalf("fresh token: %v", err)
	}

	// Verified accounts get a loud 400; absent accounts an opaque success.
	if err := f.svc.ResendVerification(context.Background(), testEmail); !errx.IsCode(err, auth.CodeAlreadyVerified) {
		t.Fatalf("verified resend: %v", err)
	}
	if err := f.svc.ResendVerification(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("absent resend must opaque-succeed: %v", err)
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)
	const newPassword = "An0ther!Pass"

	if err := f.svc.ChangePassword(context.Background(), s.User.ID, "WrongP@ss1", newPassword); !errx.IsCode(err, auth.CodeInvalidCredentials) {
		t.Fatalf("wrong current password: %v", err)
	}
	if err := f.svc.ChangePassword(context.Background(), s.User.ID, testPassword, "weak"); !errx.IsCode(err, user.CodeWeakPassword) {
		t.Fatalf("weak new password: %v", err)
	}

	if err := f.svc.ChangePassword(context.Background(), s.User.ID, testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if f.tokens.liveCount(s.User.ID) != 0 {
		t.Error("password change must revoke every continuation token")
	}
	if _, err := f.svc.Login(context.Background(), testEmail, testPassword); !errx.IsCode(err, auth.CodeInvalidCredentials) {
		t.Fatal("old password must stop working")
	}
	if _, err := f.svc.Login(context.Background(), testEmail, newPassword); err != nil {
		t.Fatalf("new password login: %v", err)
	}
	if len(f.mailer.changedNotices) == 0 {
		t.Error("password change must request the notice mail")
	}
}

func TestForgotPasswordOpacity(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)

	// Absent account: opaque success, no mail.
	if err := f.svc.ForgotPassword(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("absent forgot: %v", err)
	}
	if len(f.mailer.resets) != 0 {
		t.Error("absent account must not produce a reset mail")
	}

	// Present but unverified: same opaque success, still no mail.
	if err := f.svc.ForgotPassword(context.Background(), testEmail); err != nil {
		t.Fatalf("unverified forgot: %v", err)
	}
	if len(f.mailer.resets) != 0 {
		t.Error("unverified account must not produce a reset mail")
	}

	// Verified: the mail goes out.
	f.userRepo.byID[s.User.ID].EmailVerified = true
	if err := f.svc.ForgotPassword(context.Background(), testEmail); err != nil {
		t.Fatalf("verified forgot: %v", err)
	}
	if f.mailer.resets[testEmail] == "" {
		t.Error("verified account must receive a reset token")
	}
}

func TestResetPasswordSingleUse(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)
	f.userRepo.byID[s.User.ID].EmailVerified = true

	if err := f.svc.ForgotPassword(context.Background(), testEmail); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	token := f.mailer.resets[testEmail]

	const newPassword = "Re$etPass9"
	if err := f.svc.ResetPassword(context.Background(), token, newPassword); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, err := f.svc.Login(context.Background(), testEmail, newPassword); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}
	if f.tokens.liveCount(s.User.ID) != 0 {
		t.Error("reset must revoke every continuation token")
	}

	// Replay fails generically.
	if err := f.svc.ResetPassword(context.Background(), token, "Y3t@nother"); !errx.IsCode(err, auth.CodeInvalidLifecycleToken) {
		t.Fatalf("token replay: %v", err)
	}
}

func TestLogoutBlacklistsAccessToken(t *testing.T) {
	f := newFixture(t)
	s := f.register(t)

	if _, err := f.tokenSvc.ValidateAccessToken(context.Background(), s.AccessToken); err != nil {
		t.Fatalf("access token must validate before logout: %v", err)
	}

	f.svc.Logout(context.Background(), s.AccessToken, s.RefreshToken)

	if _, err := f.tokenSvc.ValidateAccessToken(context.Background(), s.AccessToken); err == nil {
		t.Fatal("access token must be revoked after logout")
	}
	if _, err := f.svc.Refresh(context.Background(), s.RefreshToken); err == nil {
		t.Fatal("refresh token must be revoked after logout")
	}

	// Logout with garbage never fails.
	f.svc.Logout(context.Background(), "not-a-token", "not-a-refresh")
}
