package auth

import (
	"strings"

	"github.com/Abraxas-365/aegis/pkg/iam"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// TokenMiddleware authenticates requests by bearer access token.
type TokenMiddleware struct {
	tokenService TokenService
}

// NewTokenMiddleware creates the middleware.
func NewTokenMiddleware(tokenService TokenService) *TokenMiddleware {
	return &TokenMiddleware{tokenService: tokenService}
}

// Authenticate validates the bearer token and injects the AuthContext into
// fiber locals. All failures answer 401 with the uniform invalid-token body.
func (m *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return iam.ErrInvalidToken()
		}

		claims, err := m.tokenService.ValidateAccessToken(c.Context(), token)
		if err != nil {
			return err
		}

		c.Locals(string(kernel.AuthContextKey), claims.AuthContext())
		return c.Next()
	}
}

// FromLocals retrieves the AuthContext placed by Authenticate.
func FromLocals(c *fiber.Ctx) (*kernel.AuthContext, error) {
	ac, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	if !ok || ac == nil || !ac.IsValid() {
		return nil, iam.ErrUnauthorized()
	}
	return ac, nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
