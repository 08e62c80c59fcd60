package rbac

import (
	"context"

	"github.com/Abraxas-365/aegis/pkg/iam/audit"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// RoleRepository persists roles. Mutations take the audit entry recorded in
// the same transaction — a role mutation without its audit row must not be
// observable.
type RoleRepository interface {
	Create(ctx context.Context, r *Role, entry *audit.Entry) error
	Update(ctx context.Context, r *Role, entry *audit.Entry) error
	// Delete removes a role; missing id is a typed role-not-found error.
	Delete(ctx context.Context, id kernel.RoleID, entry *audit.Entry) error
	FindByID(ctx context.Context, id kernel.RoleID) (*Role, error)
	FindByIDs(ctx context.Context, ids []kernel.RoleID) ([]*Role, error)
	// ListByOrg lists org-scoped roles for the given org, or every global
	// role (system or custom, no organization) when orgID is nil.
	ListByOrg(ctx context.Context, orgID *kernel.OrgID) ([]*Role, error)
}

// AssignmentRepository persists role assignments. Uniqueness of
// (user, role, org-or-null, team-or-null) is a store constraint: two racing
// grants resolve to exactly one row and one typed conflict.
type AssignmentRepository interface {
	// Grant inserts the assignment and its audit entry atomically. A
	// uniqueness violation maps to the already-assigned error.
	Grant(ctx context.Context, a *RoleAssignment, entry *audit.Entry) error
	// Revoke deletes the assignment and appends the audit entry atomically.
	// A missing assignment is a typed error, not silent success.
	Revoke(ctx context.Context, userID kernel.UserID, roleID kernel.RoleID, scope Scope, entry *audit.Entry) error
	// FindForUserAtScope returns the unexpired assignments matching the
	// exact scope pair (org equal or both null; team equal or both null).
	FindForUserAtScope(ctx context.Context, userID kernel.UserID, scope Scope) ([]*RoleAssignment, error)
	Exists(ctx context.Context, userID kernel.UserID, roleID kernel.RoleID, scope Scope) (bool, error)
	// DistinctOrgsForUser returns every organization where the user holds at
	// least one unexpired org-scoped assignment.
	DistinctOrgsForUser(ctx context.Context, userID kernel.UserID) ([]kernel.OrgID, error)
	// HasAssignments reports whether any assignment references the role;
	// role deletion is refused while one does.
	HasAssignments(ctx context.Context, roleID kernel.RoleID) (bool, error)
}
