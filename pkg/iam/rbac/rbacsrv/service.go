// Package rbacsrv implements the permission flows: grants, revocations, role
// management and the audit/read surface. Every mutation passes two checks:
// the coarse capability gate, then the Superset Rule against the actor's
// effective bitmap at the target scope. The double check is deliberate — the
// gate short-circuits common denials, the algebra holds regardless of how
// the gate was configured.
package rbacsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam"
	"github.com/Abraxas-365/aegis/pkg/iam/audit"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/Abraxas-365/aegis/pkg/perm"
)

// PermissionService orchestrates the authorization flows.
type PermissionService struct {
	roles       rbac.RoleRepository
	assignments rbac.AssignmentRepository
	resolver    *rbac.Resolver
	users       user.Repository
	audits      audit.Repository
}

// NewPermissionService wires the service.
func NewPermissionService(
	roles rbac.RoleRepository,
	assignments rbac.AssignmentRepository,
	resolver *rbac.Resolver,
	users user.Repository,
	audits audit.Repository,
) *PermissionService {
	return &PermissionService{
		roles:       roles,
		assignments: assignments,
		resolver:    resolver,
		users:       users,
		audits:      audits,
	}
}

// GrantRequest asks for a role assignment at a scope.
type GrantRequest struct {
	UserID    kernel.UserID
	RoleID    kernel.RoleID
	OrgID     *kernel.OrgID
	TeamID    *kernel.TeamID
	ExpiresAt *time.Time
}

// RevokeRequest asks for an assignment removal.
type RevokeRequest struct {
	UserID kernel.UserID
	RoleID kernel.RoleID
	OrgID  *kernel.OrgID
	TeamID *kernel.TeamID
}

// CreateRoleRequest asks for a custom role. Unknown permission names are
// dropped before the delegation check; the check runs against the resolved
// bitmap.
type CreateRoleRequest struct {
	Name            string
	Description     string
	PermissionNames []string
	OrgID           *kernel.OrgID
}

// UpdateRoleRequest replaces a custom role's permission list and description.
type UpdateRoleRequest struct {
	RoleID          kernel.RoleID
	Description     *string
	PermissionNames []string
}

// ============================================================================
// Mutations
// ============================================================================

// GrantRole assigns a role to a principal. The actor needs perm.grant at the
// scope (gate) and a bitmap superset of the role (Superset Rule).
func (s *PermissionService) GrantRole(ctx context.Context, actor kernel.UserID, req GrantRequest) (*rbac.RoleAssignment, error) {
	scope := rbac.Scope{OrgID: req.OrgID, TeamID: req.TeamID}
	actorEff, err := s.requireCapability(ctx, actor, scope, perm.MustLookup(perm.PermGrant))
	if err != nil {
		return nil, err
	}

	target, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errx.IsCode(err, user.CodeNotFound) {
			return nil, rbac.ErrTargetNotFound()
		}
		return nil, err
	}
	if !target.IsActive() {
		return nil, user.ErrSuspended()
	}

	role, err := s.roles.FindByID(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}

	if !perm.CanDelegate(actorEff.Bitmap, role.Bitmap) {
		return nil, rbac.ErrCannotGrant()
	}

	exists, err := s.assignments.Exists(ctx, req.UserID, req.RoleID, scope)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, rbac.ErrAlreadyAssigned()
	}

	assignment := &rbac.RoleAssignment{
		ID:        cryptox.GenerateID(),
		UserID:    req.UserID,
		RoleID:    req.RoleID,
		OrgID:     req.OrgID,
		TeamID:    req.TeamID,
		GrantedBy: actor,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	entry := s.entry(audit.ActionGrant, actor, scope, &req.UserID, &req.RoleID, audit.Metadata{
		"role_name":   role.Name,
		"permissions": role.Bitmap.Names(),
	})
	if err := s.assignments.Grant(ctx, assignment, entry); err != nil {
		return nil, err
	}
	return assignment, nil
}

// RevokeRole removes an assignment. The actor needs perm.revoke at the scope
// and may not operate on permissions they do not themselves hold.
func (s *PermissionService) RevokeRole(ctx context.Context, actor kernel.UserID, req RevokeRequest) error {
	scope := rbac.Scope{OrgID: req.OrgID, TeamID: req.TeamID}
	actorEff, err := s.requireCapability(ctx, actor, scope, perm.MustLookup(perm.PermRevoke))
	if err != nil {
		return err
	}

	role, err := s.roles.FindByID(ctx, req.RoleID)
	if err != nil {
		return err
	}
	if !perm.CanDelegate(actorEff.Bitmap, role.Bitmap) {
		return rbac.ErrCannotRevoke()
	}

	entry := s.entry(audit.ActionRevoke, actor, scope, &req.UserID, &req.RoleID, audit.Metadata{
		"role_name": role.Name,
	})
	return s.assignments.Revoke(ctx, req.UserID, req.RoleID, scope, entry)
}

// CreateRole creates a custom role at the given scope. The actor needs
// perm.role.create there and must hold every permission the role carries.
func (s *PermissionService) CreateRole(ctx context.Context, actor kernel.UserID, req CreateRoleRequest) (*rbac.Role, error) {
	scope := rbac.GlobalScope()
	if req.OrgID != nil {
		scope = rbac.OrgScope(*req.OrgID)
	}
	actorEff, err := s.requireCapability(ctx, actor, scope, perm.MustLookup(perm.PermRoleCreate))
	if err != nil {
		return nil, err
	}

	bitmap := perm.FromNames(req.PermissionNames)
	if bitmap.IsZero() {
		return nil, rbac.ErrEmptyRole()
	}
	if !perm.CanDelegate(actorEff.Bitmap, bitmap) {
		return nil, rbac.ErrCannotShape()
	}

	now := time.Now().UTC()
	role := &rbac.Role{
		ID:          kernel.NewRoleID(cryptox.GenerateID()),
		Name:        req.Name,
		Description: req.Description,
		Bitmap:      bitmap,
		IsSystem:    false,
		OrgID:       req.OrgID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry := s.entry(audit.ActionRoleCreate, actor, scope, nil, &role.ID, audit.Metadata{
		"role_name":   role.Name,
		"permissions": bitmap.Names(),
	})
	if err := s.roles.Create(ctx, role, entry); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole replaces a custom role's bitmap and description, re-running the
// delegation check against the new bitmap. System roles are immutable here.
func (s *PermissionService) UpdateRole(ctx context.Context, actor kernel.UserID, req UpdateRoleRequest) (*rbac.Role, error) {
	role, err := s.roles.FindByID(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, rbac.ErrSystemRole()
	}

	scope := rbac.GlobalScope()
	if role.OrgID != nil {
		scope = rbac.OrgScope(*role.OrgID)
	}
	actorEff, err := s.requireCapability(ctx, actor, scope, perm.MustLookup(perm.PermRoleUpdate))
	if err != nil {
		return nil, err
	}

	bitmap := perm.FromNames(req.PermissionNames)
	if bitmap.IsZero() {
		return nil, rbac.ErrEmptyRole()
	}
	if !perm.CanDelegate(actorEff.Bitmap, bitmap) {
		return nil, rbac.ErrCannotShape()
	}

	role.Bitmap = bitmap
	if req.Description != nil {
		role.Description = *req.Description
	}
	role.UpdatedAt = time.Now().UTC()

	entry := s.entry(audit.ActionRoleUpdate, actor, scope, nil, &role.ID, audit.Metadata{
		"role_name":   role.Name,
		"permissions": bitmap.Names(),
	})
	if err := s.roles.Update(ctx, role, entry); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a custom role. System roles are refused outright, and a
// role with live assignments cannot be deleted out from under its assignees —
// revoke them first.
func (s *PermissionService) DeleteRole(ctx context.Context, actor kernel.UserID, roleID kernel.RoleID) error {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return rbac.ErrSystemRole()
	}
	inUse, err := s.assignments.HasAssignments(ctx, roleID)
	if err != nil {
		return err
	}
	if inUse {
		return rbac.ErrRoleInUse()
	}

	scope := rbac.GlobalScope()
	if role.OrgID != nil {
		scope = rbac.OrgScope(*role.OrgID)
	}
	actorEff, err := s.requireCapability(ctx, actor, scope, perm.MustLookup(perm.PermRoleDelete))
	if err != nil {
		return err
	}
	if !perm.CanDelegate(actorEff.Bitmap, role.Bitmap) {
		return rbac.ErrCannotShape()
	}

	entry := s.entry(audit.ActionRoleDelete, actor, scope, nil, &roleID, audit.Metadata{
		"role_name": role.Name,
	})
	return s.roles.Delete(ctx, roleID, entry)
}

// ============================================================================
// Reads
// ============================================================================

// ListRoles lists the roles scoped to orgID, or every global role (system or
// custom, no organization) when orgID is nil. Authentication is the only gate on reads of the role catalog.
func (s *PermissionService) ListRoles(ctx context.Context, orgID *kernel.OrgID) ([]*rbac.Role, error) {
	return s.roles.ListByOrg(ctx, orgID)
}

// GetRole returns one role.
func (s *PermissionService) GetRole(ctx context.Context, roleID kernel.RoleID) (*rbac.Role, error) {
	return s.roles.FindByID(ctx, roleID)
}

// GetUserPermissions resolves a principal's effective permissions at a scope.
func (s *PermissionService) GetUserPermissions(ctx context.Context, userID kernel.UserID, scope rbac.Scope) (*rbac.EffectivePermissions, error) {
	return s.resolver.Effective(ctx, userID, scope)
}

// GetAuditTrail reads the audit history. The actor needs perm.audit.read at
// the queried organization, or globally when no org filter is set.
func (s *PermissionService) GetAuditTrail(ctx context.Context, actor kernel.UserID, q audit.Query) ([]*audit.Entry, error) {
	scope := rbac.GlobalScope()
	if q.OrgID != nil {
		scope = rbac.OrgScope(*q.OrgID)
	}
	if _, err := s.requireCapability(ctx, actor, scope, perm.MustLookup(perm.PermAuditRead)); err != nil {
		return nil, err
	}
	return s.audits.List(ctx, q)
}

// ============================================================================
// Internals
// ============================================================================

// requireCapability is the coarse gate: the actor's effective bitmap at the
// scope must contain the capability bit. Failure is the generic 403.
func (s *PermissionService) requireCapability(ctx context.Context, actor kernel.UserID, scope rbac.Scope, capability perm.Bitmap) (*rbac.EffectivePermissions, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	eff, err := s.resolver.Effective(ctx, actor, scope)
	if err != nil {
		return nil, err
	}
	if !eff.Has(capability) {
		return nil, iam.ErrAccessDenied()
	}
	return eff, nil
}

func (s *PermissionService) entry(action audit.Action, actor kernel.UserID, scope rbac.Scope, target *kernel.UserID, role *kernel.RoleID, meta audit.Metadata) *audit.Entry {
	return &audit.Entry{
		ID:        cryptox.GenerateID(),
		Action:    action,
		ActorID:   actor,
		TargetID:  target,
		RoleID:    role,
		OrgID:     scope.OrgID,
		TeamID:    scope.TeamID,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}
