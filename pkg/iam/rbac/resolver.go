package rbac

import (
	"context"

	"github.com/Abraxas-365/aegis/pkg/iam/org"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/Abraxas-365/aegis/pkg/perm"
)

// Resolver computes effective permissions for a principal at one scope.
// Scopes never merge implicitly: callers ask at one scope at a time.
type Resolver struct {
	orgs        org.Repository
	assignments AssignmentRepository
	roles       RoleRepository
}

// NewResolver creates the resolver.
func NewResolver(orgs org.Repository, assignments AssignmentRepository, roles RoleRepository) *Resolver {
	return &Resolver{orgs: orgs, assignments: assignments, roles: roles}
}

// Effective resolves the principal's permission set at the given scope.
// Organization owners short-circuit to the full superset without touching a
// single assignment row.
func (r *Resolver) Effective(ctx context.Context, userID kernel.UserID, scope Scope) (*EffectivePermissions, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if scope.OrgID != nil {
		o, err := r.orgs.FindOrg(ctx, *scope.OrgID)
		if err != nil {
			return nil, err
		}
		if o.IsOwnedBy(userID) {
			fs := perm.FullSuperset()
			return &EffectivePermissions{Bitmap: fs, Names: fs.Names(), IsOwner: true}, nil
		}
		if scope.TeamID != nil {
			t, err := r.orgs.FindTeam(ctx, *scope.TeamID)
			if err != nil {
				return nil, err
			}
			if t.OrgID != *scope.OrgID {
				return nil, org.ErrTeamOutside()
			}
		}
	}

	assignments, err := r.assignments.FindForUserAtScope(ctx, userID, scope)
	if err != nil {
		return nil, err
	}

	var combined perm.Bitmap
	ids := make([]kernel.RoleID, 0, len(assignments))
	for _, a := range assignments {
		if a.IsExpired() {
			continue
		}
		ids = append(ids, a.RoleID)
	}
	if len(ids) > 0 {
		roles, err := r.roles.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, role := range roles {
			combined = combined.Union(role.Bitmap)
		}
	}

	return &EffectivePermissions{Bitmap: combined, Names: combined.Names()}, nil
}

// OrgClaims computes the per-organization memberships minted into access
// tokens: every owned organization at full superset plus every organization
// where the principal holds an unexpired org-scoped assignment.
func (r *Resolver) OrgClaims(ctx context.Context, userID kernel.UserID) ([]kernel.OrgMembership, error) {
	var claims []kernel.OrgMembership
	seen := make(map[kernel.OrgID]bool)

	owned, err := r.orgs.FindOrgsOwnedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	fs := perm.FullSuperset()
	for _, o := range owned {
		seen[o.ID] = true
		claims = append(claims, kernel.OrgMembership{
			OrgID:   o.ID,
			Role:    "owner",
			Low:     fs.LoString(),
			High:    fs.HiString(),
			IsOwner: true,
		})
	}

	orgIDs, err := r.assignments.DistinctOrgsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range orgIDs {
		if seen[id] {
			continue
		}
		eff, err := r.Effective(ctx, userID, OrgScope(id))
		if err != nil {
			return nil, err
		}
		claims = append(claims, kernel.OrgMembership{
			OrgID: id,
			Role:  "member",
			Low:   eff.Bitmap.LoString(),
			High:  eff.Bitmap.HiString(),
		})
	}
	return claims, nil
}
