package notifx

import (
	"context"
	"fmt"
	"net/url"
)

// Template names registered by NewAuthMailer.
const (
	tmplVerifyEmail     = "auth_verify_email"
	tmplResetPassword   = "auth_reset_password"
	tmplPasswordChanged = "auth_password_changed"
)

const verifyEmailTmpl = `<p>Hi {{.Name}},</p>
<p>Confirm your email address to finish setting up your account:</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>This link expires in {{.ExpiresIn}}. If you did not create an account you can ignore this mail.</p>`

const resetPasswordTmpl = `<p>Hi {{.Name}},</p>
<p>A password reset was requested for your account. Use the link below to choose a new password:</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in {{.ExpiresIn}} and can be used once. If you did not request this, ignore this mail.</p>`

const passwordChangedTmpl = `<p>Hi {{.Name}},</p>
<p>The password on your account was just changed. If this was you, no action is needed.</p>
<p>If this was not you, reset your password immediately and contact support.</p>`

// AuthMailer renders and sends the account-lifecycle mails. Callers treat
// send failures as log-only: lifecycle flows never fail on a mail outage.
type AuthMailer struct {
	client  *Client
	from    string
	baseURL string
}

// NewAuthMailer builds a mailer over the client; baseURL is the application
// origin used to assemble links.
func NewAuthMailer(client *Client, fromName, fromAddress, baseURL string) (*AuthMailer, error) {
	for name, tmpl := range map[string]string{
		tmplVerifyEmail:     verifyEmailTmpl,
		tmplResetPassword:   resetPasswordTmpl,
		tmplPasswordChanged: passwordChangedTmpl,
	} {
		if err := client.RegisterTemplate(name, tmpl); err != nil {
			return nil, err
		}
	}
	return &AuthMailer{
		client:  client,
		from:    fmt.Sprintf("%s <%s>", fromName, fromAddress),
		baseURL: baseURL,
	}, nil
}

type mailData struct {
	Name      string
	Link      string
	ExpiresIn string
}

// SendVerification mails the email-verification link.
func (m *AuthMailer) SendVerification(ctx context.Context, to, displayName, token, expiresIn string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", m.baseURL, url.QueryEscape(token))
	return m.client.SendTemplatedEmail(ctx, tmplVerifyEmail,
		mailData{Name: displayName, Link: link, ExpiresIn: expiresIn},
		EmailMessage{From: m.from, To: []string{to}, Subject: "Verify your email address"})
}

// SendPasswordReset mails the password-reset link.
func (m *AuthMailer) SendPasswordReset(ctx context.Context, to, displayName, token, expiresIn string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.baseURL, url.QueryEscape(token))
	return m.client.SendTemplatedEmail(ctx, tmplResetPassword,
		mailData{Name: displayName, Link: link, ExpiresIn: expiresIn},
		EmailMessage{From: m.from, To: []string{to}, Subject: "Reset your password"})
}

// SendPasswordChanged mails the password-changed notice.
func (m *AuthMailer) SendPasswordChanged(ctx context.Context, to, displayName string) error {
	return m.client.SendTemplatedEmail(ctx, tmplPasswordChanged,
		mailData{Name: displayName},
		EmailMessage{From: m.from, To: []string{to}, Subject: "Your password was changed"})
}
