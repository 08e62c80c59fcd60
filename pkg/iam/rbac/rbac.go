// Package rbac implements the authorization core: roles carrying permission
// bitmaps, scoped role assignments, effective-permission resolution and the
// Superset Rule that governs delegation.
package rbac

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/Abraxas-365/aegis/pkg/perm"
)

// Scope is the (organization?, team?) pair a role assignment applies to.
// Global = (nil, nil); org-scoped = (X, nil); team-scoped = (X, Y). A team
// scope without its organization is invalid.
type Scope struct {
	OrgID  *kernel.OrgID
	TeamID *kernel.TeamID
}

// GlobalScope is the (nil, nil) scope.
func GlobalScope() Scope { return Scope{} }

// OrgScope scopes to one organization.
func OrgScope(orgID kernel.OrgID) Scope { return Scope{OrgID: &orgID} }

// TeamScope scopes to a team inside its organization.
func TeamScope(orgID kernel.OrgID, teamID kernel.TeamID) Scope {
	return Scope{OrgID: &orgID, TeamID: &teamID}
}

// Validate rejects team-without-org.
func (s Scope) Validate() error {
	if s.TeamID != nil && s.OrgID == nil {
		return ErrInvalidScope()
	}
	return nil
}

// IsGlobal reports whether the scope is (nil, nil).
func (s Scope) IsGlobal() bool { return s.OrgID == nil && s.TeamID == nil }

// Role is a named permission bitmap, optionally scoped to one organization.
// System roles (OrgID == nil, IsSystem) are provisioned by migration and are
// not deletable or renamable through the registry.
type Role struct {
	ID          kernel.RoleID
	Name        string
	Description string
	Bitmap      perm.Bitmap
	IsSystem    bool
	OrgID       *kernel.OrgID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleAssignment binds a role to a principal at one scope. The tuple
// (user, role, org-or-null, team-or-null) is unique.
type RoleAssignment struct {
	ID        string         `db:"id" json:"id"`
	UserID    kernel.UserID  `db:"user_id" json:"userId"`
	RoleID    kernel.RoleID  `db:"role_id" json:"roleId"`
	OrgID     *kernel.OrgID  `db:"org_id" json:"organizationId,omitempty"`
	TeamID    *kernel.TeamID `db:"team_id" json:"teamId,omitempty"`
	GrantedBy kernel.UserID  `db:"granted_by" json:"grantedBy"`
	ExpiresAt *time.Time     `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// IsExpired reports whether the assignment has lapsed.
func (a *RoleAssignment) IsExpired() bool {
	return a.ExpiresAt != nil && time.Now().After(*a.ExpiresAt)
}

// Scope returns the assignment's scope pair.
func (a *RoleAssignment) Scope() Scope {
	return Scope{OrgID: a.OrgID, TeamID: a.TeamID}
}

// EffectivePermissions is the resolved permission set of a principal at one
// scope.
type EffectivePermissions struct {
	Bitmap  perm.Bitmap
	Names   []string
	IsOwner bool
}

// Has applies the bit test to the resolved set.
func (e *EffectivePermissions) Has(p perm.Bitmap) bool { return e.Bitmap.Has(p) }

// ============================================================================
// Error registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("RBAC")

var (
	// Superset-rule violations. 403 with the specific human sentence; the
	// coarse capability gate uses the generic access-denied error instead.
	CodeCannotGrant  = ErrRegistry.Register("CANNOT_GRANT", errx.TypeAuthorization, http.StatusForbidden, "You cannot grant permissions you do not possess")
	CodeCannotRevoke = ErrRegistry.Register("CANNOT_REVOKE", errx.TypeAuthorization, http.StatusForbidden, "You cannot revoke permissions you do not possess")
	CodeCannotShape  = ErrRegistry.Register("CANNOT_SHAPE_ROLE", errx.TypeAuthorization, http.StatusForbidden, "You cannot create or change a role with permissions you do not possess")

	// The permission surface maps missing entities to 400, not 404.
	CodeRoleNotFound       = ErrRegistry.Register("ROLE_NOT_FOUND", errx.TypeValidation, http.StatusBadRequest, "Role not found")
	CodeAssignmentNotFound = ErrRegistry.Register("ASSIGNMENT_NOT_FOUND", errx.TypeValidation, http.StatusBadRequest, "Role assignment not found")
	CodeTargetNotFound     = ErrRegistry.Register("TARGET_NOT_FOUND", errx.TypeValidation, http.StatusBadRequest, "Target user not found")

	CodeAlreadyAssigned = ErrRegistry.Register("ALREADY_ASSIGNED", errx.TypeValidation, http.StatusBadRequest, "Role already assigned")
	CodeSystemRole      = ErrRegistry.Register("SYSTEM_ROLE", errx.TypeValidation, http.StatusBadRequest, "System roles cannot be modified")
	CodeRoleInUse       = ErrRegistry.Register("ROLE_IN_USE", errx.TypeValidation, http.StatusBadRequest, "Role still has assignments")
	CodeInvalidScope    = ErrRegistry.Register("INVALID_SCOPE", errx.TypeValidation, http.StatusBadRequest, "Team scope requires an organization")
	CodeEmptyRole       = ErrRegistry.Register("EMPTY_ROLE", errx.TypeValidation, http.StatusBadRequest, "Role resolves to no known permissions")
)

func ErrCannotGrant() *errx.Error        { return ErrRegistry.New(CodeCannotGrant) }
func ErrCannotRevoke() *errx.Error       { return ErrRegistry.New(CodeCannotRevoke) }
func ErrCannotShape() *errx.Error        { return ErrRegistry.New(CodeCannotShape) }
func ErrRoleNotFound() *errx.Error       { return ErrRegistry.New(CodeRoleNotFound) }
func ErrAssignmentNotFound() *errx.Error { return ErrRegistry.New(CodeAssignmentNotFound) }
func ErrTargetNotFound() *errx.Error     { return ErrRegistry.New(CodeTargetNotFound) }
func ErrAlreadyAssigned() *errx.Error    { return ErrRegistry.New(CodeAlreadyAssigned) }
func ErrSystemRole() *errx.Error         { return ErrRegistry.New(CodeSystemRole) }
func ErrRoleInUse() *errx.Error          { return ErrRegistry.New(CodeRoleInUse) }
func ErrInvalidScope() *errx.Error       { return ErrRegistry.New(CodeInvalidScope) }
func ErrEmptyRole() *errx.Error          { return ErrRegistry.New(CodeEmptyRole) }
