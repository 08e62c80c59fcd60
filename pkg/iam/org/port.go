package org

import (
	"context"

	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// Repository is the persistence contract for organizations and teams.
type Repository interface {
	FindOrg(ctx context.Context, id kernel.OrgID) (*Organization, error)
	FindTeam(ctx context.Context, id kernel.TeamID) (*Team, error)
	// FindOrgsOwnedBy returns every organization the principal owns.
	FindOrgsOwnedBy(ctx context.Context, userID kernel.UserID) ([]*Organization, error)
}
