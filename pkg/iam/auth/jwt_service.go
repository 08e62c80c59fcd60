package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/iam"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
)

// OrgClaim is one organization membership inside the permissions block.
// Permissions carries the decimal-string halves [low, high] of the effective
// bitmap — the halves exceed 53 bits and must not ride as JSON numbers.
type OrgClaim struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"` // "owner" | "member"
	Permissions [2]string `json:"permissions"`
}

// PermissionsClaim is the authorization payload of an access token.
type PermissionsClaim struct {
	Organizations []OrgClaim `json:"organizations"`
	Resources     []string   `json:"resources"`
}

// AccessTokenClaims is the full claim set of a signed access token.
type AccessTokenClaims struct {
	Email         string           `json:"email"`
	EmailVerified bool             `json:"email_verified"`
	DisplayName   string           `json:"display_name"`
	AvatarURL     string           `json:"avatar_url,omitempty"`
	Permissions   PermissionsClaim `json:"permissions"`
	jwt.RegisteredClaims
}

// AuthContext converts validated claims into the request auth context.
func (c *AccessTokenClaims) AuthContext() *kernel.AuthContext {
	orgs := make([]kernel.OrgMembership, 0, len(c.Permissions.Organizations))
	for _, o := range c.Permissions.Organizations {
		orgs = append(orgs, kernel.OrgMembership{
			OrgID:   kernel.NewOrgID(o.ID),
			Role:    o.Role,
			Low:     o.Permissions[0],
			High:    o.Permissions[1],
			IsOwner: o.Role == "owner",
		})
	}
	return &kernel.AuthContext{
		UserID:        kernel.NewUserID(c.Subject),
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		DisplayName:   c.DisplayName,
		TokenID:       c.ID,
		Organizations: orgs,
	}
}

// JWTService signs and verifies HS256 access tokens and gates decoded tokens
// through the blacklist.
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
	blacklist Blacklist
}

// NewJWTService creates the codec. ttl defaults to 15 minutes.
func NewJWTService(secret string, ttl time.Duration, issuer string, blacklist Blacklist) *JWTService {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	if issuer == "" {
		issuer = "aegis"
	}
	return &JWTService{
		secretKey: []byte(secret),
		ttl:       ttl,
		issuer:    issuer,
		blacklist: blacklist,
	}
}

// GenerateAccessToken mints a signed token for the principal. The jti is a
// fresh UUID per mint and is the sole revocation key.
func (j *JWTService) GenerateAccessToken(u *user.User, orgs []kernel.OrgMembership) (string, *AccessTokenClaims, error) {
	now := time.Now()

	orgClaims := make([]OrgClaim, 0, len(orgs))
	for _, m := range orgs {
		role := "member"
		if m.IsOwner {
			role = "owner"
		}
		orgClaims = append(orgClaims, OrgClaim{
			ID:          m.OrgID.String(),
			Role:        role,
			Permissions: [2]string{m.Low, m.High},
		})
	}

	avatar := ""
	if u.AvatarURL != nil {
		avatar = *u.AvatarURL
	}

	claims := &AccessTokenClaims{
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
		AvatarURL:     avatar,
		Permissions: PermissionsClaim{
			Organizations: orgClaims,
			Resources:     []string{},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   u.ID.String(),
			ID:        cryptox.GenerateID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", nil, ErrRegistry.NewWithCause(CodeTokenGenerationFailed, err)
	}
	return signed, claims, nil
}

// ValidateAccessToken verifies signature and expiry, then consults the
// blacklist on the jti. The three failure outcomes — expired, tampered,
// revoked — surface as one invalid-token error; the cause rides only in the
// wrapped error for logs.
func (j *JWTService) ValidateAccessToken(ctx context.Context, tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		// Covers both the expired and the tampered outcome; the cause stays
		// in the wrapped error for logs only.
		return nil, iam.ErrRegistry.NewWithCause(iam.CodeInvalidToken, err)
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, iam.ErrInvalidToken()
	}

	revoked, err := j.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, iam.ErrRegistry.NewWithCause(iam.CodeInvalidToken, err)
	}
	if revoked {
		return nil, iam.ErrRegistry.NewWithCause(iam.CodeInvalidToken, errors.New("token revoked"))
	}
	return claims, nil
}
