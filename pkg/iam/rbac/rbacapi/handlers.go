// Package rbacapi registers the permission and role HTTP surface.
package rbacapi

import (
	"time"

	"github.com/Abraxas-365/aegis/pkg/iam/audit"
	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac/rbacsrv"
	"github.com/Abraxas-365/aegis/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// PermissionHandlers exposes the permission flows over HTTP.
type PermissionHandlers struct {
	service *rbacsrv.PermissionService
	users   *usersrv.UserService
}

// NewPermissionHandlers creates the handler set.
func NewPermissionHandlers(service *rbacsrv.PermissionService, users *usersrv.UserService) *PermissionHandlers {
	return &PermissionHandlers{service: service, users: users}
}

// RegisterRoutes mounts the permission routes; everything requires a bearer.
func (h *PermissionHandlers) RegisterRoutes(app *fiber.App, mw *auth.TokenMiddleware) {
	perms := app.Group("/v1/permissions", mw.Authenticate())
	perms.Post("/grant", h.GrantRole)
	perms.Post("/revoke", h.RevokeRole)
	perms.Get("/audit", h.GetAuditTrail)

	roles := app.Group("/v1/roles", mw.Authenticate())
	roles.Post("/", h.CreateRole)
	roles.Get("/", h.ListRoles)
	roles.Get("/:roleId", h.GetRole)
	roles.Put("/:roleId", h.UpdateRole)
	roles.Delete("/:roleId", h.DeleteRole)

	users := app.Group("/v1/users", mw.Authenticate())
	users.Get("/", h.ListUsers)
	users.Get("/:userId/permissions", h.GetUserPermissions)
}

type grantRequest struct {
	UserID         string     `json:"userId"`
	RoleID         string     `json:"roleId"`
	OrganizationID *string    `json:"organizationId,omitempty"`
	TeamID         *string    `json:"teamId,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

func (h *PermissionHandlers) GrantRole(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}
	var req grantRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.RoleID == "" {
		return rbac.ErrTargetNotFound().WithDetail("reason", "userId and roleId are required")
	}

	assignment, err := h.service.GrantRole(c.Context(), ac.UserID, rbacsrv.GrantRequest{
		UserID:    kernel.NewUserID(req.UserID),
		RoleID:    kernel.NewRoleID(req.RoleID),
		OrgID:     orgIDPtr(req.OrganizationID),
		TeamID:    teamIDPtr(req.TeamID),
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Role granted",
		"assignment": assignment,
	})
}

type revokeRequest struct {
	UserID         string  `json:"userId"`
	RoleID         string  `json:"roleId"`
	OrganizationID *string `json:"organizationId,omitempty"`
	TeamID         *string `json:"teamId,omitempty"`
}

func (h *PermissionHandlers) RevokeRole(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}
	var req revokeRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.RoleID == "" {
		return rbac.ErrAssignmentNotFound().WithDetail("reason", "userId and roleId are required")
	}

	if err := h.service.RevokeRole(c.Context(), ac.UserID, rbacsrv.RevokeRequest{
		UserID: kernel.NewUserID(req.UserID),
		RoleID: kernel.NewRoleID(req.RoleID),
		OrgID:  orgIDPtr(req.OrganizationID),
		TeamID: teamIDPtr(req.TeamID),
	}); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Role revoked"})
}

type createRoleRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	PermissionNames []string `json:"permissionNames"`
	OrganizationID  *string  `json:"organizationId,omitempty"`
}

func (h *PermissionHandlers) CreateRole(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}
	var req createRoleRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return rbac.ErrEmptyRole().WithDetail("reason", "name and permissionNames are required")
	}

	role, err := h.service.CreateRole(c.Context(), ac.UserID, rbacsrv.CreateRoleRequest{
		Name:            req.Name,
		Description:     req.Description,
		PermissionNames: req.PermissionNames,
		OrgID:           orgIDPtr(req.OrganizationID),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Role created",
		"role":    roleView(role),
	})
}

type updateRoleRequest struct {
	Description     *string  `json:"description,omitempty"`
	PermissionNames []string `json:"permissionNames"`
}

func (h *PermissionHandlers) UpdateRole(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}
	var req updateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return rbac.ErrEmptyRole().WithDetail("reason", "malformed body")
	}

	role, err := h.service.UpdateRole(c.Context(), ac.UserID, rbacsrv.UpdateRoleRequest{
		RoleID:          kernel.NewRoleID(c.Params("roleId")),
		Description:     req.Description,
		PermissionNames: req.PermissionNames,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Role updated",
		"role":    roleView(role),
	})
}

func (h *PermissionHandlers) DeleteRole(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteRole(c.Context(), ac.UserID, kernel.NewRoleID(c.Params("roleId"))); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Role deleted"})
}

func (h *PermissionHandlers) ListRoles(c *fiber.Ctx) error {
	roles, err := h.service.ListRoles(c.Context(), orgIDPtr(queryPtr(c, "organizationId")))
	if err != nil {
		return err
	}
	views := make([]fiber.Map, len(roles))
	for i, r := range roles {
		views[i] = roleView(r)
	}
	return c.JSON(fiber.Map{"roles": views})
}

func (h *PermissionHandlers) GetRole(c *fiber.Ctx) error {
	role, err := h.service.GetRole(c.Context(), kernel.NewRoleID(c.Params("roleId")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"role": roleView(role)})
}

func (h *PermissionHandlers) GetUserPermissions(c *fiber.Ctx) error {
	scope := rbac.Scope{
		OrgID:  orgIDPtr(queryPtr(c, "organizationId")),
		TeamID: teamIDPtr(queryPtr(c, "teamId")),
	}
	eff, err := h.service.GetUserPermissions(c.Context(), kernel.NewUserID(c.Params("userId")), scope)
	if err != nil {
		return err
	}
	resp := fiber.Map{
		"userId":  c.Params("userId"),
		"isOwner": eff.IsOwner,
		"permissions": fiber.Map{
			// Decimal strings: the halves exceed 53 bits and cannot ride as
			// JSON numbers.
			"low":   eff.Bitmap.LoString(),
			"high":  eff.Bitmap.HiString(),
			"names": eff.Names,
		},
	}
	if scope.OrgID != nil {
		resp["organizationId"] = scope.OrgID.String()
	}
	if scope.TeamID != nil {
		resp["teamId"] = scope.TeamID.String()
	}
	return c.JSON(resp)
}

func (h *PermissionHandlers) GetAuditTrail(c *fiber.Ctx) error {
	ac, err := auth.FromLocals(c)
	if err != nil {
		return err
	}

	q := audit.Query{Limit: c.QueryInt("limit")}
	if v := queryPtr(c, "actorId"); v != nil {
		id := kernel.NewUserID(*v)
		q.ActorID = &id
	}
	if v := queryPtr(c, "targetId"); v != nil {
		id := kernel.NewUserID(*v)
		q.TargetID = &id
	}
	if v := queryPtr(c, "roleId"); v != nil {
		id := kernel.NewRoleID(*v)
		q.RoleID = &id
	}
	q.OrgID = orgIDPtr(queryPtr(c, "organizationId"))
	if v := queryPtr(c, "action"); v != nil {
		a := audit.Action(*v)
		q.Action = &a
	}

	entries, err := h.service.GetAuditTrail(c.Context(), ac.UserID, q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": entries})
}

func (h *PermissionHandlers) ListUsers(c *fiber.Ctx) error {
	users, err := h.users.ListRecent(c.Context(), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": users})
}

// ============================================================================
// Views and helpers
// ============================================================================

func roleView(r *rbac.Role) fiber.Map {
	v := fiber.Map{
		"id":          r.ID,
		"name":        r.Name,
		"description": r.Description,
		"isSystem":    r.IsSystem,
		"permissions": fiber.Map{
			"low":   r.Bitmap.LoString(),
			"high":  r.Bitmap.HiString(),
			"names": r.Bitmap.Names(),
		},
		"createdAt": r.CreatedAt,
		"updatedAt": r.UpdatedAt,
	}
	if r.OrgID != nil {
		v["organizationId"] = r.OrgID.String()
	}
	return v
}

func queryPtr(c *fiber.Ctx, key string) *string {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	return &v
}

func orgIDPtr(s *string) *kernel.OrgID {
	if s == nil {
		return nil
	}
	id := kernel.NewOrgID(*s)
	return &id
}

func teamIDPtr(s *string) *kernel.TeamID {
	if s == nil {
		return nil
	}
	id := kernel.NewTeamID(*s)
	return &id
}
