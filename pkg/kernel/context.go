package kernel

// OrgMembership is the per-organization permission claim carried inside an
// access token. Low and High are the decimal-string halves of the member's
// effective bitmap at org scope.
type OrgMembership struct {
	OrgID   OrgID    `json:"id"`
	Role    string   `json:"role"` // "owner" | "member"
	Low     string   `json:"low"`
	High    string   `json:"high"`
	IsOwner bool     `json:"-"`
}

// AuthContext is the authenticated-request context injected by the token
// middleware. It mirrors the access-token claims, never the database.
type AuthContext struct {
	UserID        UserID          `json:"user_id"`
	Email         string          `json:"email"`
	EmailVerified bool            `json:"email_verified"`
	DisplayName   string          `json:"display_name"`
	TokenID       string          `json:"jti"`
	Organizations []OrgMembership `json:"organizations"`
}

// IsValid reports whether the context identifies a principal.
func (ac *AuthContext) IsValid() bool {
	return !ac.UserID.IsEmpty() && ac.TokenID != ""
}

// Membership returns the claim for the given organization, if present.
func (ac *AuthContext) Membership(orgID OrgID) (OrgMembership, bool) {
	for _, m := range ac.Organizations {
		if m.OrgID == orgID {
			return m, true
		}
	}
	return OrgMembership{}, false
}

type ContextKey string

const (
	// AuthContextKey locates the AuthContext in fiber locals and context.Context.
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey locates the request id.
	RequestIDKey ContextKey = "request_id"
)
