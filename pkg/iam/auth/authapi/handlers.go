// Package authapi registers the /v1/auth HTTP surface over the auth service.
package authapi

import (
	"time"

	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/gofiber/fiber/v2"
)

// RefreshCookieName is the continuation-token cookie.
const RefreshCookieName = "refreshToken"

// AuthHandlers exposes the authentication flows over HTTP.
type AuthHandlers struct {
	service    *authsrv.AuthService
	refreshTTL time.Duration
}

// NewAuthHandlers creates the handler set.
func NewAuthHandlers(service *authsrv.AuthService, refreshTTL time.Duration) *AuthHandlers {
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AuthHandlers{service: service, refreshTTL: refreshTTL}
}

// RegisterRoutes mounts the auth routes. The bearer middleware guards only
// the endpoints that require an authenticated principal.
func (h *AuthHandlers) RegisterRoutes(app *fiber.App, mw *auth.TokenMiddleware) {
	g := app.Group("/v1/auth")

	g.Post("/register", h.Register)
	g.Post("/login", h.Login)
	g.Post("/refresh", h.Refresh)
	g.Post("/logout", h.Logout)
	g.Post("/verify-email", h.VerifyEmail)
	g.Post("/resend-verification", h.ResendVerification)
	g.Post("/forgot-password", h.ForgotPassword)
	g.Post("/reset-password", h.ResetPassword)

	g.Get("/me", mw.Authenticate(), h.Me)
	g.Post("/change-password", mw.Authenticate(), h.ChangePassword)
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (h *AuthHandlers) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return user.ErrInvalidEmail().WithDetail("reason", "malformed body")
	}

	session, err := h.service.Register(c.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Account created. Check your inbox to verify your email.",
		"accessToken": session.AccessToken,
		"user": fiber.Map{
			"id":          session.User.ID,
			"email":       session.User.Email,
			"displayName": session.User.DisplayName,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandlers) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidCredentials()
	}

	session, err := h.service.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return c.JSON(fiber.Map{
		"message":     "Logged in",
		"accessToken": session.AccessToken,
		"user": fiber.Map{
			"id":            session.User.ID,
			"email":         session.User.Email,
			"displayName":   session.User.DisplayName,
			"emailVerified": session.User.EmailVerified,
		},
	})
}

func (h *AuthHandlers) Refresh(c *fiber.Ctx) error {
	bearer := c.Cookies(RefreshCookieName)
	if bearer == "" {
		return auth.ErrInvalidRefreshToken()
	}

	session, err := h.service.Refresh(c.Context(), bearer)
	if err != nil {
		// The held token is dead either way; make the client drop it.
		h.clearRefreshCookie(c)
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return c.JSON(fiber.Map{"accessToken": session.AccessToken})
}

func (h *AuthHandlers) Logout(c *fiber.Ctx) error {
	h.service.Logout(c.Context(), bearerFromHeader(c), c.Cookies(RefreshCookieName))
	h.clearRefreshCookie(c)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func (h *AuthHandlers) Me(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}
	u, err := h.service.Me(c.Context(), ac.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": u})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandlers) ChangePassword(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return user.ErrWeakPassword().WithDetail("reason", "malformed body")
	}
	if err := h.service.ChangePassword(c.Context(), ac.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password changed"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandlers) VerifyEmail(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return auth.ErrInvalidLifecycleToken()
	}
	if err := h.service.VerifyEmail(c.Context(), req.Token); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Email verified"})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandlers) ResendVerification(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return user.ErrInvalidEmail().WithDetail("reason", "malformed body")
	}
	if err := h.service.ResendVerification(c.Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "If that account exists, a verification mail is on its way"})
}

func (h *AuthHandlers) ForgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return user.ErrInvalidEmail().WithDetail("reason", "malformed body")
	}
	if err := h.service.ForgotPassword(c.Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "If that account exists, a reset mail is on its way"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandlers) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return auth.ErrInvalidLifecycleToken()
	}
	if err := h.service.ResetPassword(c.Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password reset"})
}

// ============================================================================
// Cookies
// ============================================================================

func (h *AuthHandlers) setRefreshCookie(c *fiber.Ctx, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func bearerFromHeader(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
