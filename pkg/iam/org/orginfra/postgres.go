// Package orginfra is the PostgreSQL implementation of the org repository.
package orginfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/org"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresOrgRepository implements org.Repository on sqlx.
type PostgresOrgRepository struct {
	db *sqlx.DB
}

// NewPostgresOrgRepository creates the repository.
func NewPostgresOrgRepository(db *sqlx.DB) org.Repository {
	return &PostgresOrgRepository{db: db}
}

func (r *PostgresOrgRepository) FindOrg(ctx context.Context, id kernel.OrgID) (*org.Organization, error) {
	var o org.Organization
	query := `SELECT * FROM organizations WHERE id = $1`
	if err := r.db.GetContext(ctx, &o, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, org.ErrOrgNotFound()
		}
		return nil, errx.Wrap(err, "failed to find organization", errx.TypeInternal)
	}
	return &o, nil
}

func (r *PostgresOrgRepository) FindTeam(ctx context.Context, id kernel.TeamID) (*org.Team, error) {
	var t org.Team
	query := `SELECT * FROM teams WHERE id = $1`
	if err := r.db.GetContext(ctx, &t, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, org.ErrTeamNotFound()
		}
		return nil, errx.Wrap(err, "failed to find team", errx.TypeInternal)
	}
	return &t, nil
}

func (r *PostgresOrgRepository) FindOrgsOwnedBy(ctx context.Context, userID kernel.UserID) ([]*org.Organization, error) {
	var orgs []*org.Organization
	query := `SELECT * FROM organizations WHERE owner_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &orgs, query, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to list owned organizations", errx.TypeInternal)
	}
	return orgs, nil
}
