// Package user is the principal directory: account records, the password
// policy, and the lifecycle of the email-verified flag.
package user

import (
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// Status of a principal. Suspended principals cannot log in or refresh and
// are rejected as the target of a role grant; the permission service does
// not check the acting principal's status.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// User is a principal. PasswordHash is empty for social-only accounts, which
// cannot authenticate by password.
type User struct {
	ID            kernel.UserID `db:"id" json:"id"`
	Email         string        `db:"email" json:"email"`
	PasswordHash  string        `db:"password_hash" json:"-"`
	EmailVerified bool          `db:"email_verified" json:"emailVerified"`
	DisplayName   string        `db:"display_name" json:"displayName"`
	AvatarURL     *string       `db:"avatar_url" json:"avatarUrl,omitempty"`
	Status        Status        `db:"status" json:"status"`
	MFAEnabled    bool          `db:"mfa_enabled" json:"mfaEnabled"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
	LastLoginAt   *time.Time    `db:"last_login_at" json:"lastLoginAt,omitempty"`
}

// IsActive reports whether the principal may authenticate and act.
func (u *User) IsActive() bool { return u.Status == StatusActive }

// HasPassword reports whether the principal can authenticate by password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// NormalizeEmail lowercases and trims an email address. Uniqueness is
// enforced on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail is a shallow shape check; deliverability is the mail sender's
// problem.
func ValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t\n")
}

// CheckPasswordPolicy enforces the account password policy: at least 8
// characters with an upper, a lower, a digit and a symbol.
func CheckPasswordPolicy(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword().WithDetail("requirement", "at least 8 characters")
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return ErrWeakPassword().WithDetail("requirement", "upper and lower case letters, a digit and a symbol")
	}
	return nil
}

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeNotFound       = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeDuplicateEmail = ErrRegistry.Register("DUPLICATE_EMAIL", errx.TypeConflict, http.StatusConflict, "Email already registered")
	CodeWeakPassword   = ErrRegistry.Register("WEAK_PASSWORD", errx.TypeValidation, http.StatusBadRequest, "Password does not meet the strength policy")
	CodeInvalidEmail   = ErrRegistry.Register("INVALID_EMAIL", errx.TypeValidation, http.StatusBadRequest, "Invalid email address")
	CodeSuspended      = ErrRegistry.Register("SUSPENDED", errx.TypeAuthorization, http.StatusForbidden, "Account is suspended")
)

func ErrNotFound() *errx.Error       { return ErrRegistry.New(CodeNotFound) }
func ErrDuplicateEmail() *errx.Error { return ErrRegistry.New(CodeDuplicateEmail) }
func ErrWeakPassword() *errx.Error   { return ErrRegistry.New(CodeWeakPassword) }
func ErrInvalidEmail() *errx.Error   { return ErrRegistry.New(CodeInvalidEmail) }
func ErrSuspended() *errx.Error      { return ErrRegistry.New(CodeSuspended) }
