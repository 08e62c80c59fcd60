// Package org holds organizations and their teams — the two scope levels of
// the permission model.
package org

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Organization is the outer scope. The owner implicitly holds the full
// permission superset inside it; no assignment row exists for that.
type Organization struct {
	ID        kernel.OrgID  `db:"id" json:"id"`
	Slug      string        `db:"slug" json:"slug"`
	OwnerID   kernel.UserID `db:"owner_id" json:"ownerId"`
	Status    Status        `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// IsOwnedBy reports whether the principal owns this organization.
func (o *Organization) IsOwnedBy(userID kernel.UserID) bool {
	return o.OwnerID == userID
}

// Team is the inner scope. A team never exists without its organization;
// deleting the organization cascades.
type Team struct {
	ID        kernel.TeamID `db:"id" json:"id"`
	OrgID     kernel.OrgID  `db:"org_id" json:"organizationId"`
	Slug      string        `db:"slug" json:"slug"`
	Status    Status        `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

var ErrRegistry = errx.NewRegistry("ORG")

var (
	CodeOrgNotFound  = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Organization not found")
	CodeTeamNotFound = ErrRegistry.Register("TEAM_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Team not found")
	CodeTeamOutside  = ErrRegistry.Register("TEAM_OUTSIDE_ORG", errx.TypeValidation, http.StatusBadRequest, "Team does not belong to the organization")
)

func ErrOrgNotFound() *errx.Error  { return ErrRegistry.New(CodeOrgNotFound) }
func ErrTeamNotFound() *errx.Error { return ErrRegistry.New(CodeTeamNotFound) }
func ErrTeamOutside() *errx.Error  { return ErrRegistry.New(CodeTeamOutside) }
